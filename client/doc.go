// Package client is the HTTP side of the session: a JSON client for the
// back-office API, the AuthAPI implementation used by goSession.Session, the
// request authorizer that attaches bearer tokens and recovers from 401s, and
// the settlement file uploader.
//
// Two http.Clients are expected per process. The one handed to NewAuthAPI
// uses a plain transport; the one used for business calls wraps its
// transport in an Authorizer.
package client
