package buildtrack

import "context"

// Mailer is the notification gateway. Implementations deliver account emails;
// failures are returned to the caller, which decides whether delivery is
// load-bearing (registration compensates, welcome mail is advisory).
type Mailer interface {
	SendVerificationOTP(ctx context.Context, to, name, otp string) error
	SendWelcome(ctx context.Context, to, name string) error
	SendPasswordResetOTP(ctx context.Context, to, name, otp string) error
}

// LogMailer writes outbound mail to the logger instead of dialing SMTP.
// Development/default implementation.
type LogMailer struct {
	logger Logger
}

var _ Mailer = (*LogMailer)(nil)

// NewLogMailer returns a Mailer that logs instead of sending.
func NewLogMailer(logger Logger) *LogMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationOTP(_ context.Context, to, name, otp string) error {
	m.logger.Info("mail: verification OTP to %s (%s): %s", to, name, otp)
	return nil
}

func (m *LogMailer) SendWelcome(_ context.Context, to, name string) error {
	m.logger.Info("mail: welcome to %s (%s)", to, name)
	return nil
}

func (m *LogMailer) SendPasswordResetOTP(_ context.Context, to, name, otp string) error {
	m.logger.Info("mail: password reset OTP to %s (%s): %s", to, name, otp)
	return nil
}
