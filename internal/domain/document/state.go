package document

// billTransitions lists the legal bill status moves. Cancelled is terminal.
var billTransitions = map[Status][]Status{
	StatusUnpaid:        {StatusPartiallyPaid, StatusPaid, StatusCancelled},
	StatusPartiallyPaid: {StatusPartiallyPaid, StatusPaid, StatusCancelled},
	StatusPaid:          {StatusCancelled},
}

// CanTransition reports whether a bill may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range billTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
