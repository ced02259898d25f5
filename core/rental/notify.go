package rental

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/user"
)

// notifyCustomer emails the owner of r. Failures are logged, never returned: the rental operation already succeeded.
func (svc *service) notifyCustomer(ctx context.Context, r Rental, tmpl, subject string, extra map[string]interface{}) bool {
	usr, err := svc.userSvc.GetByID(ctx, r.UserID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("rental.notifyCustomer(%s, %s): %v", r.Code, tmpl, err), err)
		return false
	}
	if usr.Email == "" {
		return false
	}

	data := map[string]interface{}{"Name": usr.Name, "Rental": r}
	for k, v := range extra {
		data[k] = v
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: data,
	})
	return true
}

// notifyAdmins emails every active admin about r.
func (svc *service) notifyAdmins(ctx context.Context, r Rental, tmpl, subject string) {
	admins, err := svc.userSvc.Admins(ctx)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("rental.notifyAdmins(%s, %s): %v", r.Code, tmpl, err), err)
		return
	}

	var customer user.User
	if customer, err = svc.userSvc.GetByID(ctx, r.UserID); err != nil {
		svc.logger.Warn(fmt.Sprintf("rental.notifyAdmins(%s): %v", r.Code, err), err)
	}

	msgs := make([]*core.EmailMessage, 0, len(admins))
	for _, admin := range admins {
		if admin.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: admin.Name, Address: admin.Email}},
			Subject:      subject,
			TemplateName: tmpl,
			TemplateData: map[string]interface{}{"Name": admin.Name, "Rental": r, "Customer": customer},
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}
