package service

import (
	"slices"

	"form-analytics/pkg/models"
)

// CanViewResults reports whether user may see analytics and individual
// responses for tmpl. Only the author and admins can.
func CanViewResults(user *models.User, tmpl *models.Template) bool {
	if user == nil || tmpl == nil || user.IsBlocked {
		return false
	}
	return user.IsAdmin || user.ID == tmpl.AuthorID
}

// CanViewResponse reports whether user may open a single response: anyone
// who can view results, plus the responder themselves
func CanViewResponse(user *models.User, tmpl *models.Template, resp *models.FormResponse) bool {
	if CanViewResults(user, tmpl) {
		return true
	}
	return user != nil && resp != nil && !user.IsBlocked && user.ID == resp.UserID
}

// CanSubmit reports whether user may fill in tmpl
func CanSubmit(user *models.User, tmpl *models.Template) bool {
	if user == nil || tmpl == nil || user.IsBlocked {
		return false
	}
	if tmpl.IsPublic || user.IsAdmin || user.ID == tmpl.AuthorID {
		return true
	}
	return slices.Contains(tmpl.AllowedUserIDs, user.ID)
}
