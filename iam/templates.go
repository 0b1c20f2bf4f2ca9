package iam

import (
	"bytes"
	"html/template"
)

// consentTemplate renders the patient-selection/consent form shown on a GET
// to /authorize. Grounded on dex's templates.go loadTemplates pattern, but
// collapsed to a single embedded template since this authority serves one
// client and has no connector/theme selection to render.
var consentTemplate = template.Must(template.New("authorize").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorize access</title></head>
<body>
<h1>Authorize pghd-mobile-client</h1>
<p>Select the patient record to authorize for PGHD submission.</p>
<form method="POST" action="{{.FormAction}}">
  <input type="hidden" name="client_id" value="{{.ClientID}}">
  <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
  <input type="hidden" name="state" value="{{.State}}">
  <input type="hidden" name="scope" value="{{.Scope}}">
  <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
  <input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">
  <label for="patient_id">Patient ID</label>
  <input type="text" id="patient_id" name="patient_id" value="{{.PatientID}}" required>
  <label for="date_of_birth">Date of birth</label>
  <input type="date" id="date_of_birth" name="date_of_birth" value="{{.DateOfBirth}}" required>
  <button type="submit">Authorize</button>
</form>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
</body>
</html>`))

type consentPage struct {
	FormAction          string
	ClientID            string
	RedirectURI         string
	State               string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	PatientID           string
	DateOfBirth         string
	Error               string
}

func renderConsent(buf *bytes.Buffer, p consentPage) error {
	return consentTemplate.Execute(buf, p)
}
