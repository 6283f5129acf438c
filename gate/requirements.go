package gate

import (
	x402 "github.com/paygatehq/x402-go"
	"github.com/paygatehq/x402-go/validation"
)

// Builder defaults applied when the route config leaves a field unset.
const (
	defaultMimeType          = "application/json"
	defaultMaxTimeoutSeconds = 300
)

// buildTemplate converts a RouteConfig into the PaymentRequirement template
// cached on the route. It runs once, at construction time, and performs no
// network I/O: the price conversion and address normalization are pure.
// Only the resource URI may be deferred to request time.
func buildTemplate(payTo string, cfg RouteConfig, s *settings) (x402.PaymentRequirement, error) {
	var zero x402.PaymentRequirement

	options := cfg.Config
	if options == nil {
		options = &RouteOptions{}
	}

	if options.Resource == "" && s.resource == nil {
		return zero, x402.NewConfigError("either Config.Resource or a ResourceFromRequest option must be provided")
	}

	converted, err := s.parsePrice(cfg.Price, cfg.Network)
	if err != nil {
		return zero, x402.NewConfigError(err.Error())
	}

	payToChecksummed, err := validation.ChecksumAddress(payTo, cfg.Network)
	if err != nil {
		return zero, x402.NewConfigError(err.Error())
	}
	assetChecksummed, err := validation.ChecksumAddress(converted.Asset.Address, cfg.Network)
	if err != nil {
		return zero, x402.NewConfigError(err.Error())
	}

	mimeType := options.MimeType
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	maxTimeout := options.MaxTimeoutSeconds
	if maxTimeout == 0 {
		maxTimeout = defaultMaxTimeoutSeconds
	}

	requirement := x402.PaymentRequirement{
		Scheme:            "exact",
		Network:           cfg.Network,
		MaxAmountRequired: converted.Amount,
		Resource:          options.Resource,
		Description:       options.Description,
		MimeType:          mimeType,
		PayTo:             payToChecksummed,
		MaxTimeoutSeconds: maxTimeout,
		Asset:             assetChecksummed,
		OutputSchema:      options.OutputSchema,
	}

	if converted.Asset.EIP712 != nil {
		requirement.Extra = map[string]interface{}{
			"name":    converted.Asset.EIP712.Name,
			"version": converted.Asset.EIP712.Version,
		}
	}

	return requirement, nil
}
