package server

import "github.com/jrsteele09/helpdesk-portal/role"

const noticeParam = "notice"

type noticeCode string

const (
	noticeSignedIn            noticeCode = "signed-in"
	noticeSignedOut           noticeCode = "signed-out"
	noticeLoginCancelled      noticeCode = "login-cancelled"
	noticeLoginFailed         noticeCode = "login-failed"
	noticeProviderUnavailable noticeCode = "provider-unavailable"
	noticeAccessCheckFailed   noticeCode = "access-check-failed"
)

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeInfo    NoticeKind = "info"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// Notice is a message shown above the service list. Dismissable notices can
// be closed by the user; a blocking notice replaces the page content.
type Notice struct {
	Kind        NoticeKind `json:"kind"`
	Message     string     `json:"message"`
	Dismissable bool       `json:"dismissable"`
	Blocking    bool       `json:"blocking"`
}

// Only known codes are rendered; the query string never supplies text.
var notices = map[noticeCode]Notice{
	noticeSignedIn:            {Kind: NoticeSuccess, Message: "Signed in successfully.", Dismissable: true},
	noticeSignedOut:           {Kind: NoticeSuccess, Message: "You have been signed out.", Dismissable: true},
	noticeLoginCancelled:      {Kind: NoticeInfo, Message: "Sign-in was cancelled.", Dismissable: true},
	noticeLoginFailed:         {Kind: NoticeError, Message: "Sign-in failed. Please try again.", Dismissable: true},
	noticeProviderUnavailable: {Kind: NoticeError, Message: "The sign-in service is currently unavailable. Please reload the page and try again.", Dismissable: true},
	noticeAccessCheckFailed:   {Kind: NoticeWarning, Message: "We could not check your access right now. Please reload the page to try again.", Dismissable: true},
}

var unauthorizedNotice = Notice{
	Kind:     NoticeError,
	Message:  "You are not authorized to use this portal. Please contact IT if you believe this is a mistake.",
	Blocking: true,
}

func lookupNotice(code string) *Notice {
	n, ok := notices[noticeCode(code)]
	if !ok {
		return nil
	}
	return &n
}

// noticeFor picks the notice to show: a blocking notice for an unauthorized
// role wins over whatever the redirect carried.
func noticeFor(r role.Role, code string) *Notice {
	if r == role.Unauthorized {
		n := unauthorizedNotice
		return &n
	}
	return lookupNotice(code)
}
