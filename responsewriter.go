package oidcmw

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/ironvault/oidcmw/provider"
)

// formPostTemplate auto-submits the response parameters as a same-origin
// POST, per OAuth 2.0 Form Post Response Mode. Parsed once at init, in the
// teacher's html/template.Must(template.New(...).Parse(...)) style
// (handler.go's consent/error pages).
var formPostTemplate = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorizing...</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{range .Fields}}<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{end}}<noscript><input type="submit" value="Continue"></noscript>
</form>
</body>
</html>
`))

type formPostField struct{ Name, Value string }

type formPostData struct {
	Action template.URL
	Fields []formPostField
}

// writeAuthorizationResponse dispatches msg's parameters to redirectURI
// using mode (query/fragment/form_post), per spec.md §4.9.
func writeAuthorizationResponse(w http.ResponseWriter, r *http.Request, redirectURI, mode string, msg *provider.Message) {
	switch mode {
	case "fragment":
		writeFragmentResponse(w, redirectURI, msg)
	case "form_post":
		writeFormPostResponse(w, redirectURI, msg)
	default:
		writeQueryResponse(w, r, redirectURI, msg)
	}
}

func writeQueryResponse(w http.ResponseWriter, r *http.Request, redirectURI string, msg *provider.Message) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusInternalServerError)
		return
	}
	q := u.Query()
	for k, vals := range msg.Parameters {
		if len(vals) > 0 {
			q.Set(k, vals[0])
		}
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func writeFragmentResponse(w http.ResponseWriter, redirectURI string, msg *provider.Message) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusInternalServerError)
		return
	}
	frag := url.Values{}
	for k, vals := range msg.Parameters {
		if len(vals) > 0 {
			frag.Set(k, vals[0])
		}
	}
	u.Fragment = ""
	u.RawQuery = ""
	w.Header().Set("Location", u.String()+"#"+frag.Encode())
	w.WriteHeader(http.StatusFound)
}

func writeFormPostResponse(w http.ResponseWriter, redirectURI string, msg *provider.Message) {
	data := formPostData{Action: template.URL(redirectURI)}
	for k, vals := range msg.Parameters {
		if len(vals) > 0 {
			data.Fields = append(data.Fields, formPostField{Name: k, Value: vals[0]})
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = formPostTemplate.Execute(w, data)
}

// writeAuthorizationError chooses between redirecting the error back to the
// client (when redirectURI/mode are confirmed safe to use) and the
// error-page path, per spec.md §4.9: with no trusted redirect_uri, the
// handler defers to the next middleware when the application says it can
// render its own error page, else it writes a minimal text/plain body.
func (m *Middleware) writeAuthorizationError(w http.ResponseWriter, r *http.Request, redirectURI, mode string, state string, canUseRedirect bool, protoErr *provider.ProtocolError) {
	if canUseRedirect && redirectURI != "" {
		msg := provider.NewMessage()
		msg.SetError(protoErr)
		if state != "" {
			msg.Set("state", state)
		}
		writeAuthorizationResponse(w, r, redirectURI, mode, msg)
		return
	}

	if m.opts.ApplicationCanDisplayErrors {
		if r != nil {
			m.next.ServeHTTP(w, r)
			return
		}
		status := protoErr.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		w.WriteHeader(status)
		return
	}

	status := protoErr.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("error: " + protoErr.Code + "\nerror_description: " + protoErr.Description + "\nerror_uri: " + protoErr.URI + "\n"))
}
