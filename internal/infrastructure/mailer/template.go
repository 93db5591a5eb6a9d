package mailer

import (
	"fmt"
	"html"
	"time"
)

const otpSubject = "Your CheckCalendar Verification Code"

// OTPMessage renders the sign-in code email.
func OTPMessage(to, code string, validFor time.Duration) Message {
	minutes := int(validFor.Minutes())
	escaped := html.EscapeString(code)
	return Message{
		To:      to,
		Subject: otpSubject,
		Text:    fmt.Sprintf("Your verification code is: %s\nValid for %d minutes.", code, minutes),
		HTML: fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 500px; margin: 20px auto; padding: 30px; border: 1px solid #eee; border-radius: 20px; text-align: center;">
  <h1 style="color: #2563eb; margin-bottom: 20px;">CheckCalendar</h1>
  <p style="color: #666; font-size: 16px;">Use the code below to sign in:</p>
  <div style="background: #f4f7ff; padding: 20px; border-radius: 12px; margin: 25px 0;">
    <span style="font-size: 32px; font-weight: bold; letter-spacing: 10px; color: #1e40af;">%s</span>
  </div>
  <p style="color: #999; font-size: 12px;">Valid for %d minutes.</p>
</div>`, escaped, minutes),
	}
}
