package x402

// FindMatchingRequirement selects the requirement a payment payload is
// attempting to satisfy. Matching is exact and case-sensitive on scheme and
// network; the first matching requirement in declaration order is returned,
// or nil when none matches.
func FindMatchingRequirement(payment PaymentPayload, requirements []PaymentRequirement) *PaymentRequirement {
	for i := range requirements {
		if requirements[i].Scheme == payment.Scheme && requirements[i].Network == payment.Network {
			return &requirements[i]
		}
	}
	return nil
}
