// Package paywall renders the human-facing HTML fallback shown to browser
// clients that reach a protected route without payment. It is invoked only
// by framework adapters; the enforcement engine never renders HTML.
package paywall

import (
	"encoding/json"
	"html/template"
	"strconv"
	"strings"

	x402 "github.com/paygatehq/x402-go"
)

// Config is the paywall branding configuration.
type Config struct {
	// AppName is shown as the page title. Defaults to "Payment Required".
	AppName string

	// AppLogo is an optional logo URL.
	AppLogo string

	// CDPClientKey is an optional wallet-onramp client key injected into
	// the page config for in-page payment flows.
	CDPClientKey string

	// SessionTokenEndpoint is an optional endpoint the in-page flow can use
	// to mint onramp session tokens.
	SessionTokenEndpoint string
}

// pageData is what the template sees.
type pageData struct {
	AppName       string
	AppLogo       string
	Amount        string
	Network       string
	Description   string
	CurrentURL    string
	InjectedState template.JS
}

var page = template.Must(template.New("paywall").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.AppName}}</title>
<style>
body{font-family:system-ui,sans-serif;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0;background:#f7f7f8}
.card{background:#fff;border-radius:12px;box-shadow:0 2px 12px rgba(0,0,0,.08);padding:2.5rem;max-width:26rem;text-align:center}
.amount{font-size:2rem;font-weight:600;margin:.75rem 0}
.meta{color:#666;font-size:.875rem}
img.logo{max-height:3rem;margin-bottom:1rem}
</style>
<script>window.x402 = {{.InjectedState}};</script>
</head>
<body>
<div class="card">
{{if .AppLogo}}<img class="logo" src="{{.AppLogo}}" alt="{{.AppName}}">{{end}}
<h1>Payment Required</h1>
<div class="amount">${{.Amount}} USD</div>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<p class="meta">Pay with USDC on {{.Network}} to access {{.CurrentURL}}</p>
</div>
</body>
</html>
`))

// Render generates the paywall HTML for the given requirement list and
// request URL. The first requirement drives the displayed amount and
// network; the full list plus branding is injected into the page as
// window.x402 for in-page payment scripts.
func Render(accepts []x402.PaymentRequirement, currentURL string, cfg *Config) (string, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	data := pageData{
		AppName:    cfg.AppName,
		AppLogo:    cfg.AppLogo,
		Amount:     "0",
		CurrentURL: currentURL,
	}
	if data.AppName == "" {
		data.AppName = "Payment Required"
	}
	if len(accepts) > 0 {
		data.Amount = displayAmount(accepts[0].MaxAmountRequired)
		data.Network = accepts[0].Network
		data.Description = accepts[0].Description
	}

	state, err := json.Marshal(map[string]interface{}{
		"x402Version":          x402.X402Version,
		"accepts":              accepts,
		"currentUrl":           currentURL,
		"appName":              cfg.AppName,
		"appLogo":              cfg.AppLogo,
		"cdpClientKey":         cfg.CDPClientKey,
		"sessionTokenEndpoint": cfg.SessionTokenEndpoint,
	})
	if err != nil {
		return "", err
	}
	data.InjectedState = template.JS(state)

	var b strings.Builder
	if err := page.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// displayAmount converts an atomic USDC amount to a display string.
// Display only; the protocol always carries atomic strings.
func displayAmount(atomic string) string {
	v, err := strconv.ParseFloat(atomic, 64)
	if err != nil {
		return "0"
	}
	return strconv.FormatFloat(v/1e6, 'f', -1, 64)
}
