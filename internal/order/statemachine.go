package order

// The two surfaces share one canonical machine. The admin path may park an
// order in "processing" between paid and shipped; the webhook path never
// produces that state and treats it as paid when judging legality, so a
// redelivered authorization event behaves the same whether fulfilment has
// started or not.

var webhookTransitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusFailed, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusRefunded},
	StatusShipped:   {StatusDelivered, StatusRefunded},
	StatusDelivered: {StatusRefunded},
	StatusCancelled: {},
	StatusRefunded:  {},
	StatusFailed:    {},
}

var adminTransitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusFailed, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusShipped, StatusRefunded},
	StatusProcessing: {StatusShipped, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusRefunded},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
	StatusFailed:     {},
}

// CanTransition reports whether the webhook reconciliation path may move an
// order from one status to another. A self-transition is always legal and is
// a no-op; that property is what makes event redelivery safe.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from == StatusProcessing {
		from = StatusPaid
	}
	return allowed(webhookTransitions, from, to)
}

// CanTransitionAdmin reports whether the manual-override surface may move an
// order from one status to another. It recognises the processing sub-state.
func CanTransitionAdmin(from, to Status) bool {
	return allowed(adminTransitions, from, to)
}

func allowed(table map[Status][]Status, from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no event-driven transition can leave the status.
func Terminal(s Status) bool {
	switch s {
	case StatusCancelled, StatusRefunded, StatusFailed:
		return true
	}
	return false
}
