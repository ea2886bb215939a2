/*
Package apisdk is the client SDK and wire vocabulary for the gatekeeper
login service.

The server uses the request, response and error types in this package so
both sides agree on one JSON shape. Clients start with a Client:

	client := apisdk.NewClient("http://localhost:8080")

	res, err := client.Login(ctx, "alice", "correct horse")
	switch res.Status {
	case apisdk.StatusAuthenticated:
		session := client.NewSession(res.Tokens())
	case apisdk.StatusMFARequired:
		tokens, err := client.VerifyMFA(ctx, "alice", code)
	case apisdk.StatusPendingApproval:
		res, err = client.PollApproval(ctx, res.ApprovalID, "")
	}

A Session carries the token pair and refreshes the access token shortly
before it expires. Every call on a Session sends the bearer token.

Failed calls return *APIError with the HTTP status and the server's
error code.
*/
package apisdk
