package notify

import (
	htmltemplate "html/template"
	texttemplate "text/template"
)

const successHTML = `<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background-color: #4CAF50; color: white; padding: 20px; text-align: center; border-radius: 5px;">
    <h1>Application Submitted Successfully!</h1>
  </div>
  <h2>Job Application Details</h2>
  <p><strong>Company:</strong> {{.Company}}</p>
  <p><strong>Position:</strong> {{.Position}}</p>
  <p><strong>Job URL:</strong><br><a href="{{.JobURL}}">{{.JobURL}}</a></p>
  <p><strong>Fields Filled:</strong> {{.FieldsFilled}} / {{.TotalFields}}</p>
  <p><strong>Submitted At:</strong> {{.At}}</p>
  <p style="font-size: 12px; color: #666;">This is an automated notification. Check the company's portal for confirmation.</p>
</div>
</body>
</html>`

const failureHTML = `<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background-color: #f44336; color: white; padding: 20px; text-align: center; border-radius: 5px;">
    <h1>Application Submission Failed</h1>
  </div>
  <h2>Job Application Details</h2>
  <p><strong>Company:</strong> {{.Company}}</p>
  <p><strong>Position:</strong> {{.Position}}</p>
  <p><strong>Job URL:</strong><br><a href="{{.JobURL}}">{{.JobURL}}</a></p>
  <p><strong>Fields Filled:</strong> {{.FieldsFilled}} / {{.TotalFields}}</p>
  <div style="background-color: #ffebee; padding: 15px; border-radius: 5px;">
    <strong>Error Message:</strong><br>{{.Headline}}
  </div>
  {{- if .Errors}}
  <p><strong>Errors Detected:</strong></p>
  <ul>{{range .Errors}}<li>{{.}}</li>{{end}}</ul>
  {{- end}}
  <p><strong>Failed At:</strong> {{.At}}</p>
  <p style="font-size: 12px; color: #666;">This is an automated notification. Review the error and try applying manually.</p>
</div>
</body>
</html>`

const successText = `JOB APPLICATION SUBMITTED SUCCESSFULLY

Company: {{.Company}}
Position: {{.Position}}
Job URL: {{.JobURL}}
Fields Filled: {{.FieldsFilled}} / {{.TotalFields}}
Submitted At: {{.At}}
`

const failureText = `JOB APPLICATION FAILED

Company: {{.Company}}
Position: {{.Position}}
Job URL: {{.JobURL}}
Fields Filled: {{.FieldsFilled}} / {{.TotalFields}}

Error: {{.Headline}}
{{- range .Errors}}
  - {{.}}
{{- end}}

Failed At: {{.At}}
`

var (
	successHTMLTmpl = htmltemplate.Must(htmltemplate.New("success.html").Parse(successHTML))
	failureHTMLTmpl = htmltemplate.Must(htmltemplate.New("failure.html").Parse(failureHTML))
	successTextTmpl = texttemplate.Must(texttemplate.New("success.txt").Parse(successText))
	failureTextTmpl = texttemplate.Must(texttemplate.New("failure.txt").Parse(failureText))
)
