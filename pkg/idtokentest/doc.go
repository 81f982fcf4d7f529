// Package idtokentest provides an in-process stand-in for Google's OAuth
// token endpoint and tokeninfo endpoint, plus helpers for producing
// service-account key files.
//
// It lets tests drive the whole exchange without network access or real
// credentials. It provides:
//
//   - Server: a fake token endpoint and tokeninfo endpoint
//   - KeyFile: a service-account JSON key document
//   - Key helpers: shared and fresh RSA keys, PEM encoders
//
// # Basic Usage
//
//	func TestExchange(t *testing.T) {
//	    srv := idtokentest.NewTestServer(t)
//
//	    // Trust a key and write a key file that points at srv
//	    kf := srv.NewKeyFile("svc@example.iam.gserviceaccount.com", idtokentest.SharedKey())
//	    path := idtokentest.WriteTestKeyFile(t, kf)
//
//	    // ... run the code under test against path and srv.TokenInfoURL()
//
//	    if srv.TokenCalls() != 1 {
//	        t.Errorf("expected 1 token call, got %d", srv.TokenCalls())
//	    }
//	}
//
// # Failure Scenarios
//
// Canned responses replace the normal endpoint behavior:
//
//	srv.RespondToken(http.StatusBadRequest, `{"error":"invalid_grant"}`)
//	srv.RespondToken(http.StatusOK, `{}`) // a response without id_token
//	srv.RespondTokenInfo(http.StatusBadRequest, `{"error_description":"Invalid Value"}`)
package idtokentest
