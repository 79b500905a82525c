package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"campusattend/internal/apperr"
	"campusattend/internal/attendance"
)

func (s *Server) userHistory(c *gin.Context) {
	id := c.Param("id")
	user, err := s.Directory.ResolveByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, apperr.Persistence("directory.resolve", err))
		return
	}
	if user == nil {
		writeError(c, apperr.NotFound("attendance.user", errors.Errorf("user %s", id)))
		return
	}
	history, err := s.Ledger.History(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if history == nil {
		history = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"user":    user,
		"history": history,
		"summary": attendance.Summarize(history, s.Ledger.LocalTime()),
	})
}

func (s *Server) recordsByDate(c *gin.Context) {
	date := c.Param("date")
	recs, err := s.Ledger.ByDate(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "records": recs})
}

func (s *Server) dailyStats(c *gin.Context) {
	date := c.DefaultQuery("date", s.Ledger.Today())
	d, err := s.Stats.DailyStats(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
