// Package notify groups the delivery channels for one-time codes and
// security alerts.
//
//   - smtp: emails the code through an SMTP relay (production).
//   - logger: writes the code to the process log (development only).
//   - telegram: posts lockout and replay alerts to an operator chat.
package notify
