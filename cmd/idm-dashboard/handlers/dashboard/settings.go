package dashboard

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wrale/idm-dashboard/cmd/idm-dashboard/handlers/common"
	"github.com/wrale/idm-dashboard/internal/identity"
	"github.com/wrale/idm-dashboard/internal/session"
	"github.com/wrale/idm-dashboard/internal/templates"
	"github.com/wrale/idm-dashboard/internal/validation"
)

const (
	msgProfileUpdated       = "Profile updated successfully!"
	msgProfileFailed        = "Failed to update profile."
	msgPasswordChanged      = "Password changed successfully. You have been logged out."
	msgPasswordFailed       = "Failed to change password."
	msgTwoFactorSetupFailed = "Could not generate 2FA secret. Please try again."
	msgTwoFactorInvalid     = "Invalid token. Please check your authenticator app."
	msgTwoFactorDisableFail = "Failed to disable 2FA."
	msgTwoFactorEnabled     = "Two-factor authentication enabled."
	msgTwoFactorDisabled    = "Two-factor authentication disabled."
	msgSessionsFailed       = "Failed to fetch sessions."
	msgRevokeSessionFailed  = "Failed to revoke session."
	msgRevokeSessionsFailed = "Failed to revoke all sessions."
	msgSessionRevoked       = "Session revoked."
	msgAllSessionsRevoked   = "All other sessions have been revoked."
)

// HandleSettings shows the profile or security tab
func (h *Handler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	data := templates.SettingsData{
		Tab:     TabFromQuery(query.Get("tab")),
		Editing: query.Get("edit") != "",
	}
	h.renderSettings(w, r, http.StatusOK, data)
}

// HandleUpdateProfile saves the profile form. Blank fields are left
// unchanged on the server.
func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	update := profileFromForm(r)
	data := templates.SettingsData{Tab: templates.TabProfile}

	var err error
	if update.Name != "" {
		err = validation.ValidateName("name", update.Name)
	}
	var user *identity.User
	if err == nil {
		user, err = h.identity.UpdateProfile(ctx, session.FromContext(ctx), update)
	}
	if err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		data.Editing = true
		data.Profile = update
		data.Error = common.UserMessage(err, msgProfileFailed)
		h.renderSettings(w, r, common.StatusFor(err), data)
		return
	}

	data.Flash = msgProfileUpdated
	h.renderSettings(w, common.SetUser(r, user), http.StatusOK, data)
}

// HandleChangePassword replaces the password. The backend ends every
// session, so the stored token is cleared and the login page shown.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	data := templates.SettingsData{Tab: templates.TabSecurity}

	next := r.PostFormValue("newPassword")
	err := validation.ValidateNewPassword(next)
	if err == nil {
		err = h.identity.ChangePassword(ctx, sess, r.PostFormValue("currentPassword"), next)
	}
	if err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		data.Error = common.UserMessage(err, msgPasswordFailed)
		h.renderSettings(w, r, common.StatusFor(err), data)
		return
	}

	sess.ClearToken(ctx)
	r = common.SetUser(r, nil)
	login := templates.LoginData{Page: h.pages.Page(r, "Login")}
	login.Flash = msgPasswordChanged
	h.pages.Render(w, r, http.StatusOK, templates.PageLogin, login)
}

// HandleGenerateTwoFactor starts authenticator enrollment and shows the QR code
func (h *Handler) HandleGenerateTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := templates.SettingsData{Tab: templates.TabSecurity}

	setup, err := h.identity.GenerateTwoFactor(ctx, session.FromContext(ctx))
	if err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		slog.WarnContext(ctx, "generating 2fa secret", "error", err)
		data.Error = msgTwoFactorSetupFailed
		h.renderSettings(w, r, common.StatusFor(err), data)
		return
	}

	data.TwoFactor = setup
	h.renderSettings(w, r, http.StatusOK, data)
}

// HandleVerifyTwoFactor enables 2FA with a code from the authenticator
func (h *Handler) HandleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := templates.SettingsData{Tab: templates.TabSecurity}

	code := validation.NormalizeTwoFactorCode(r.PostFormValue("token"))
	err := validation.ValidateTwoFactorCode(code)
	if err == nil {
		err = h.identity.VerifyTwoFactor(ctx, session.FromContext(ctx), code)
	}
	if err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		data.Error = common.UserMessage(err, msgTwoFactorInvalid)
		h.renderSettings(w, r, common.StatusFor(err), data)
		return
	}

	h.afterTwoFactorChange(w, r, true)
}

// HandleDisableTwoFactor turns 2FA off
func (h *Handler) HandleDisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.identity.DisableTwoFactor(ctx, session.FromContext(ctx)); err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		slog.WarnContext(ctx, "disabling 2fa", "error", err)
		data := templates.SettingsData{Tab: templates.TabSecurity}
		data.Error = msgTwoFactorDisableFail
		h.renderSettings(w, r, common.StatusFor(err), data)
		return
	}

	h.afterTwoFactorChange(w, r, false)
}

// afterTwoFactorChange reloads the user so the page reflects the new state
func (h *Handler) afterTwoFactorChange(w http.ResponseWriter, r *http.Request, enabled bool) {
	ctx := r.Context()
	data := templates.SettingsData{Tab: templates.TabSecurity}
	data.Flash = msgTwoFactorDisabled
	if enabled {
		data.Flash = msgTwoFactorEnabled
	}

	user, err := h.identity.Me(ctx, session.FromContext(ctx))
	if err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		slog.WarnContext(ctx, "reloading user", "error", err)
		current := *common.UserFromContext(ctx)
		current.TwoFactorEnabled = enabled
		user = &current
	}
	h.renderSettings(w, common.SetUser(r, user), http.StatusOK, data)
}

// HandleRevokeSession signs out one device
func (h *Handler) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := templates.SettingsData{Tab: templates.TabSecurity}

	if err := h.identity.RevokeSession(ctx, session.FromContext(ctx), chi.URLParam(r, "id")); err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		slog.WarnContext(ctx, "revoking session", "error", err)
		data.Error = msgRevokeSessionFailed
		h.renderSettings(w, r, common.StatusFor(err), data)
		return
	}

	data.Flash = msgSessionRevoked
	h.renderSettings(w, r, http.StatusOK, data)
}

// HandleRevokeAllSessions signs out every other device
func (h *Handler) HandleRevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := templates.SettingsData{Tab: templates.TabSecurity}

	if err := h.identity.RevokeAllSessions(ctx, session.FromContext(ctx)); err != nil {
		if common.RedirectIfSignedOut(w, r, err) {
			return
		}
		slog.WarnContext(ctx, "revoking all sessions", "error", err)
		data.Error = msgRevokeSessionsFailed
		h.renderSettings(w, r, common.StatusFor(err), data)
		return
	}

	data.Flash = msgAllSessionsRevoked
	h.renderSettings(w, r, http.StatusOK, data)
}

// renderSettings fills in the shared fields and, on the security tab, the
// session list
func (h *Handler) renderSettings(w http.ResponseWriter, r *http.Request, status int, data templates.SettingsData) {
	ctx := r.Context()
	h.pages.Fill(r, "Settings", &data.Page)

	if data.Tab == templates.TabSecurity {
		sessions, err := h.identity.Sessions(ctx, session.FromContext(ctx))
		if err != nil {
			if common.RedirectIfSignedOut(w, r, err) {
				return
			}
			slog.WarnContext(ctx, "fetching sessions", "error", err)
			data.SessionsError = msgSessionsFailed
		}
		data.Sessions = sessions
	} else if data.Editing && data.Profile == (identity.ProfileUpdate{}) {
		data.Profile = profileFromUser(data.User)
	}

	h.pages.Render(w, r, status, templates.PageSettings, data)
}

// TabFromQuery maps the tab query parameter to a settings tab
func TabFromQuery(tab string) string {
	if tab == templates.TabSecurity {
		return templates.TabSecurity
	}
	return templates.TabProfile
}

func profileFromForm(r *http.Request) identity.ProfileUpdate {
	field := func(name string) string {
		return strings.TrimSpace(r.PostFormValue(name))
	}
	return identity.ProfileUpdate{
		Name:           field("name"),
		GivenName:      field("givenName"),
		FamilyName:     field("familyName"),
		ProfilePicture: field("profilePicture"),
		PhoneNumber:    field("phoneNumber"),
		Gender:         field("gender"),
		Birthday:       field("birthday"),
		Language:       field("language"),
		Country:        field("country"),
		Timezone:       field("timezone"),
	}
}

func profileFromUser(user *identity.User) identity.ProfileUpdate {
	if user == nil {
		return identity.ProfileUpdate{Gender: identity.DefaultGender}
	}
	gender := user.Gender
	if gender == "" {
		gender = identity.DefaultGender
	}
	return identity.ProfileUpdate{
		Name:           user.Name,
		GivenName:      user.GivenName,
		FamilyName:     user.FamilyName,
		ProfilePicture: user.ProfilePicture,
		PhoneNumber:    user.PhoneNumber,
		Gender:         gender,
		Birthday:       user.BirthdayDate(),
		Language:       user.Language,
		Country:        user.Country,
		Timezone:       user.Timezone,
	}
}
