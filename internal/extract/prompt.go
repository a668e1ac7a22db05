package extract

import (
	"fmt"
	"strings"

	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

const systemPromptHeader = `You are a financial transaction extractor for bank and wallet notification emails. Most emails come from Nepali banks (NIC Asia, Nabil, Global IME, Siddhartha, Himalayan) and wallets (eSewa, Khalti, IME Pay), but handle any bank notification.

You MUST respond with ONLY a valid JSON object. No explanatory text, no markdown fences.

Decide first whether the email describes exactly one completed money movement on the recipient's account. OTP codes, balance statements, promotions, payment reminders, and failed-transaction notices are NOT transactions.

Respond with this shape:
{
  "is_transaction": true or false,
  "amount": positive number, the transaction magnitude,
  "currency": ISO code or local code, e.g. "NPR",
  "direction": "debit" when money leaves the account, "credit" when it arrives,
  "merchant": counterparty or merchant name if identifiable,
  "bank": sending institution,
  "account_suffix": last digits of the account if shown,
  "date": transaction date as RFC 3339 or "YYYY-MM-DD" if present,
  "remarks": free-text purpose or narration from the email,
  "confidence": 0.0 to 1.0, your certainty in the extracted fields,
  "category": see below
}

When is_transaction is false, only is_transaction and confidence are required.

Merchant hints: "Pathao" and "InDrive" are Transport; "Bhatbhateni", "Salesberry" are Groceries; "Daraz" is Shopping; "Worldlink", "NEA", "Nepal Telecom", "Ncell" are Utilities; wallet-to-wallet and bank-to-bank sends are Transfers.

Category decision, as the "category" object:
- {"action": "select_existing", "id": <category id from the list below>} when one clearly fits
- {"action": "create_new", "new_name": "...", "new_icon": "<one emoji>"} only when nothing in the list fits and the merchant clearly implies a durable new category
- {"action": "uncategorized"} when unsure`

// BuildSystemPrompt renders the extraction instructions with the user's
// category catalogue appended.
func BuildSystemPrompt(categories []model.Category) string {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	b.WriteString("\n\nAvailable categories:\n")
	for _, cat := range categories {
		fmt.Fprintf(&b, "- id=%d %s\n", cat.ID, cat.Name)
	}
	return b.String()
}

// BuildUserMessage renders one email for the model. The body is truncated
// to keep prompts bounded; bank notifications put the payload first.
func BuildUserMessage(msg service.MailMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	if !msg.ReceivedAt.IsZero() {
		fmt.Fprintf(&b, "Received: %s\n", msg.ReceivedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	b.WriteString("\n")

	body := msg.Body
	if body == "" {
		body = msg.Snippet
	}
	b.WriteString(model.TruncateExcerpt(body))

	return b.String()
}
