// Package seed builds the demo roster and the historical attendance used
// by local setups.
package seed

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"campusattend/internal/attendance"
	"campusattend/internal/directory"
)

// BackfillDays is how many past days get a record. Today is never seeded.
const BackfillDays = 89

var staff = []struct {
	id, name, branch string
	role             directory.Role
}{
	{"princ_01", "P. JANAKI DEVI", "ADMIN", directory.RolePrincipal},
	{"hod_01", "Dr. S.N PADMAVATHI", "CS", directory.RoleHOD},
	{"hod_02", "Dr. CH. VIDYA SAGAR", "EC", directory.RoleHOD},
	{"fac_02", "J.ANAND KUMAR", "EC", directory.RoleFaculty},
	{"fac_06", "NAMBURU GOWTAMI", "EC", directory.RoleFaculty},
	{"fac_04", "BIDARUKOTA SHAKTHI KIRAN", "IT", directory.RoleFaculty},
	{"staff_01", "G.VENKAT REDDY", "Library", directory.RoleStaff},
}

var students = []struct{ branch, roll, name string }{
	{"EC", "001", "KUMMARI VAISHNAVI"},
	{"EC", "002", "BAKAM CHANDU"},
	{"EC", "003", "TEKMAL MANIPRASAD"},
	{"EC", "004", "BATTA VENU"},
	{"EC", "005", "KAMMARI UDAY TEJA"},
	{"EC", "006", "BONGULURU VISHNU VARDHAN"},
	{"EC", "007", "JANGAM PRIYANKA"},
	{"EC", "008", "SUBEDAR ANISH"},
	{"EC", "009", "ARROLLA KAVYA"},
	{"EC", "010", "BANOTHU NARENDER"},
	{"CS", "001", "CHERUKUPALLY KAVYA"},
	{"CS", "002", "KURWA SHIVA"},
	{"CS", "003", "MOHAMMAD AMER QUERESHI"},
	{"CS", "004", "VEENAVANKA RADHAKRISHNA"},
}

var staffPinPrefix = map[directory.Role]string{
	directory.RolePrincipal: "PRI",
	directory.RoleHOD:       "HOD",
	directory.RoleFaculty:   "FAC",
	directory.RoleStaff:     "STF",
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func emailOf(name string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(name), "."), ".") + "@mira.edu"
}

// Roster returns the demo users. Student PINs use yearPrefix. The first
// two students have both addresses verified so a local capture exercises
// every notification channel.
func Roster(yearPrefix string) []directory.User {
	users := make([]directory.User, 0, len(staff)+len(students))
	for _, p := range staff {
		users = append(users, directory.User{
			ID:            p.id,
			PIN:           staffPinPrefix[p.role] + "-" + p.id[strings.IndexByte(p.id, '_')+1:],
			Name:          p.name,
			Role:          p.role,
			Branch:        p.branch,
			Email:         emailOf(p.name),
			EmailVerified: true,
		})
	}
	for i, s := range students {
		compact := nonAlnum.ReplaceAllString(strings.ToLower(s.name), "")
		u := directory.User{
			ID:                  "stud-" + strings.ToLower(s.branch) + "-" + s.roll,
			PIN:                 yearPrefix + "-" + s.branch + "-" + s.roll,
			Name:                s.name,
			Role:                directory.RoleStudent,
			Branch:              s.branch,
			Email:               emailOf(s.name),
			EmailVerified:       i%5 != 4,
			ParentEmail:         "parent." + compact + "@email.com",
			ParentEmailVerified: i < 2 || i%2 == 0,
		}
		users = append(users, u)
	}
	return users
}

// History generates BackfillDays of Present/Absent records before today
// for students and faculty, roughly 80% present.
func History(users []directory.User, today time.Time, rng *rand.Rand) []attendance.Record {
	var recs []attendance.Record
	for _, u := range users {
		if u.Role != directory.RoleStudent && u.Role != directory.RoleFaculty {
			continue
		}
		for i := 1; i <= BackfillDays; i++ {
			date := attendance.FormatDate(today.AddDate(0, 0, -i))
			status := attendance.StatusAbsent
			if rng.Float64() > 0.2 {
				status = attendance.StatusPresent
			}
			recs = append(recs, attendance.Record{UserID: u.ID, Date: date, Status: status})
		}
	}
	return recs
}

// Backfill writes the history through the ledger and returns how many rows
// were created.
func Backfill(ctx context.Context, ledger *attendance.Ledger, users []directory.User, rng *rand.Rand) (int, error) {
	return ledger.Backfill(ctx, History(users, ledger.LocalTime(), rng))
}
