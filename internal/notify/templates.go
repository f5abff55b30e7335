package notify

import "text/template"

// The first line of each template is the subject.

var receivedTmpl = template.Must(template.New("received").Parse(`Issue received!
Dear {{ .Issue.Name }},

Thank you for reaching out to us with your concerns. We would like to confirm that we have received your issue report and are giving it our utmost attention. Our team is already in the process of reviewing the details you provided, and we are committed to resolving it as swiftly and efficiently as possible.

Reference: #{{ .Issue.ID }}
Room: {{ .Issue.RoomNumber }}
Issue type: {{ .Types }}
Importance: {{ .Issue.Importance.Label }}
Submitted at: {{ .Received }}

We will keep you updated on our progress and notify you as soon as your issue has been resolved. Should you have any further questions or require additional assistance in the meantime, please feel free to contact us. Your patience and understanding in this matter are greatly appreciated.

Best regards,
{{ .Team }}
`))

var resolvedTmpl = template.Must(template.New("resolved").Parse(`Issue resolved!
Hello {{ .Issue.Name }},

Great news!
The issue you brought to our attention via the {{ .Tool }} has been effectively resolved. We sincerely appreciate your patience and understanding throughout this process.

Reference: #{{ .Issue.ID }}
Room: {{ .Issue.RoomNumber }}

Should you have any further questions, need additional assistance, or encounter any other issues, please do not hesitate to reach out to us.

Thank you for using our {{ .Tool }}. We are committed to continually providing you with exceptional service.

Best regards,
{{ .Team }}
`))
