package service

import (
	"fmt"
	"html"
	"strings"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

const notProvided = "Not provided"

type NotificationSettings struct {
	StoreName    string
	SupportEmail string
	PortalURL    string
	OwnerEmail   string
	AdminURL     string
}

func OrderConfirmationEmail(order *model.Order, settings NotificationSettings) model.Email {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Thank you for your order, %s!</h2>", esc(valueOr(order.CustomerName, "there")))
	b.WriteString("<p>Your payment was received. Here is your order summary:</p>")
	b.WriteString("<table>")
	row(&b, "Order", order.ID.String())
	row(&b, "Product", valueOr(order.ProductName, notProvided))
	row(&b, "Amount", FormatAmount(order.AmountCents, order.Currency))
	b.WriteString("</table>")
	if order.IsDeviceOrder() {
		b.WriteString("<p>Your device will ship to:</p>")
		writeAddress(&b, order.Shipping)
	}
	if !order.IsRenewal {
		b.WriteString("<p>Your login details arrive in a separate email.</p>")
	}
	writeSupportFooter(&b, settings)

	return model.Email{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("%s order confirmation #%s", settings.StoreName, shortID(order)),
		HTML:    b.String(),
	}
}

func RenewalConfirmationEmail(order *model.Order, settings NotificationSettings) model.Email {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Your subscription has been renewed, %s!</h2>", esc(valueOr(order.CustomerName, "there")))
	b.WriteString("<table>")
	row(&b, "Order", order.ID.String())
	row(&b, "Username", valueOr(order.ExistingUsername, notProvided))
	row(&b, "Plan", valueOr(order.ProductName, notProvided))
	row(&b, "Amount", FormatAmount(order.AmountCents, order.Currency))
	b.WriteString("</table>")
	b.WriteString("<p>Keep using your existing login. No changes are needed on your devices.</p>")
	writeSupportFooter(&b, settings)

	return model.Email{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("%s renewal confirmed #%s", settings.StoreName, shortID(order)),
		HTML:    b.String(),
	}
}

func CredentialsEmail(order *model.Order, settings NotificationSettings) model.Email {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Your streaming account is ready, %s</h2>", esc(valueOr(order.CustomerName, "there")))
	b.WriteString("<table>")
	row(&b, "Username", valueOr(order.GeneratedUsername, notProvided))
	row(&b, "Password", valueOr(order.GeneratedPassword, notProvided))
	if settings.PortalURL != "" {
		row(&b, "Portal", settings.PortalURL)
	}
	b.WriteString("</table>")

	b.WriteString("<h3>Setup</h3><ol>")
	for _, step := range setupSteps(order) {
		fmt.Fprintf(&b, "<li>%s</li>", esc(step))
	}
	b.WriteString("</ol>")
	writeSupportFooter(&b, settings)

	return model.Email{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Your %s login details", settings.StoreName),
		HTML:    b.String(),
	}
}

// OwnerAlertEmail notifies the operator about a sale. A non-empty warning is
// rendered as an action-required block.
func OwnerAlertEmail(order *model.Order, warning string, settings NotificationSettings) model.Email {
	var b strings.Builder
	b.WriteString("<h2>New paid order</h2>")
	if warning != "" {
		fmt.Fprintf(&b, "<p><strong>ACTION REQUIRED:</strong> %s</p>", esc(warning))
	}
	b.WriteString("<table>")
	row(&b, "Order", order.ID.String())
	row(&b, "Customer", valueOr(order.CustomerName, notProvided))
	row(&b, "Email", valueOr(order.CustomerEmail, notProvided))
	row(&b, "Phone", valueOr(order.CustomerPhone, notProvided))
	row(&b, "Product", valueOr(order.ProductName, notProvided))
	row(&b, "Amount", FormatAmount(order.AmountCents, order.Currency))
	if order.IsRenewal {
		row(&b, "Renewal of", valueOr(order.ExistingUsername, notProvided))
	}
	row(&b, "Username", valueOr(order.GeneratedUsername, notProvided))
	b.WriteString("</table>")
	if order.IsDeviceOrder() {
		b.WriteString("<p>Ship to:</p>")
		writeAddress(&b, order.Shipping)
	}
	if settings.AdminURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s">Open admin</a></p>`, esc(settings.AdminURL))
	}

	subject := fmt.Sprintf("New sale: %s (%s)", valueOr(order.ProductName, "order"), FormatAmount(order.AmountCents, order.Currency))
	if warning != "" {
		subject = "[ACTION REQUIRED] " + subject
	}
	return model.Email{To: settings.OwnerEmail, Subject: subject, HTML: b.String()}
}

func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	code := strings.ToUpper(currency)
	if code == "" || code == "USD" {
		return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, code)
}

func setupSteps(order *model.Order) []string {
	if order.IsDeviceOrder() {
		return []string{
			"Plug in your Fire Stick and connect it to Wi-Fi.",
			"Open the IPTV app from the home screen.",
			"Enter the username and password above and select Sign In.",
		}
	}
	return []string{
		"Install an IPTV player such as IPTV Smarters on your device.",
		"Choose \"Login with Xtream Codes API\".",
		"Enter the username, password and portal URL above.",
	}
}

func writeAddress(b *strings.Builder, a model.ShippingAddress) {
	if a.Empty() {
		fmt.Fprintf(b, "<p>%s</p>", notProvided)
		return
	}
	parts := []string{a.Name, a.Street, strings.TrimSpace(a.City + " " + a.State + " " + a.Zip), a.Country}
	var lines []string
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			lines = append(lines, esc(part))
		}
	}
	fmt.Fprintf(b, "<p>%s</p>", strings.Join(lines, "<br>"))
}

func writeSupportFooter(b *strings.Builder, settings NotificationSettings) {
	if settings.SupportEmail != "" {
		fmt.Fprintf(b, "<p>Questions? Contact us at %s.</p>", esc(settings.SupportEmail))
	}
}

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "<tr><td>%s</td><td>%s</td></tr>", esc(label), esc(value))
}

func shortID(order *model.Order) string {
	return strings.ToUpper(order.ID.String()[:8])
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func esc(s string) string {
	return html.EscapeString(s)
}
