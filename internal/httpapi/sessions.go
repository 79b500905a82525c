package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperr"
	"campusattend/internal/auth"
	"campusattend/internal/capture"
	"campusattend/internal/directory"
	"campusattend/internal/identity"
)

type sessionView struct {
	ID         string              `json:"id"`
	Phase      capture.Phase       `json:"phase"`
	Identifier identity.Identifier `json:"identifier"`
	Student    *directory.User     `json:"student"`
	Acquiring  bool                `json:"acquiring"`
	StreamID   string              `json:"stream_id,omitempty"`
	Error      string              `json:"error,omitempty"`
	ErrorKind  apperr.Kind         `json:"error_kind,omitempty"`
	Result     *capture.Result     `json:"result,omitempty"`
}

func viewOf(s *capture.Session) sessionView {
	st := s.Snapshot()
	v := sessionView{
		ID:         s.ID,
		Phase:      st.Phase,
		Identifier: st.Identifier,
		Student:    st.Student,
		Acquiring:  st.Acquiring,
		StreamID:   st.StreamID,
		Result:     st.Result,
	}
	if st.Err != nil {
		v.Error = st.ErrorText()
		v.ErrorKind = apperr.KindOf(st.Err)
	}
	return v
}

// session loads the :id session and checks that the caller owns it.
func (s *Server) session(c *gin.Context) (*capture.Session, bool) {
	sess, err := s.Sessions.Get(c.Param("id"))
	if err == nil {
		if claims, ok := auth.ClaimsFrom(c); !ok || claims.Subject != sess.Owner {
			err = apperr.NotFound("capture.session", nil)
		}
	}
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) createSession(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	sess := s.Sessions.Create(claims.Subject)
	c.JSON(http.StatusCreated, viewOf(sess))
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(sess))
}

func (s *Server) identify(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req identity.Identifier
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := sess.Identify(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(sess))
}

func (s *Server) start(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Start(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, viewOf(sess))
}

func (s *Server) cancel(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Cancel()
	c.JSON(http.StatusOK, viewOf(sess))
}

func (s *Server) reset(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Reset()
	c.JSON(http.StatusOK, viewOf(sess))
}

func (s *Server) closeSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := s.Sessions.Close(sess.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
