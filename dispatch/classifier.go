package dispatch

// TransactionAction is the transaction-scope verdict in a Recovery plan
// (spec.md §4.C).
type TransactionAction int

const (
	// ActionNone means the transaction-scope outcome carries no
	// action of its own; per-operation index sets drive recovery.
	ActionNone TransactionAction = iota
	// ActionTransientRetry means resubmit the same batch unmodified
	// after a backoff.
	ActionTransientRetry
	// ActionFatal means stop immediately. Classify never returns it:
	// every transport error without result codes, whatever its status,
	// maps to ActionTransientRetry. BatchSender still ends the batch
	// with ErrBatchPermanentlyFailed for a plan that carries it.
	ActionFatal
)

// Recovery is the structured plan ErrorClassifier produces from a
// gateway failure (spec.md §4.C): three ordered index sets over the
// batch that was submitted, plus a transaction-scope action.
type Recovery struct {
	TransactionAction TransactionAction

	// Invalid holds indices to drop as permanently unroutable.
	Invalid []int
	// MoveToEnd holds indices to requeue at the tail of the remaining
	// work list (first time) or promote to Invalid (second time); the
	// promotion decision is BatchSender's, not the classifier's.
	MoveToEnd []int
	// ConvertToClaim holds indices whose operation should become a
	// DeferredClaim before the next submission attempt.
	ConvertToClaim []int

	// RefillGas is set when a tx_insufficient_balance condition
	// requires topping up the distributor's native gas balance before
	// the retry.
	RefillGas bool
	// EstablishTrustAt maps operation index -> asset requiring a
	// source trust line (op_src_no_trust).
	EstablishTrustAt map[int]Asset
	// RefillAssetAt maps operation index -> asset requiring a supply
	// top-up (op_underfunded).
	RefillAssetAt map[int]Asset
}

// per-operation gateway result codes recognized by Classify (spec.md
// §4.C's table).
const (
	codeOpSuccess     = "op_success"
	codeOpNoTrust     = "op_no_trust"
	codeOpMalformed   = "op_malformed"
	codeOpLineFull    = "op_line_full"
	codeOpSrcNoTrust  = "op_src_no_trust"
	codeOpUnderfunded = "op_underfunded"

	codeTxInsufficientBalance = "tx_insufficient_balance"
)

// Classify maps a gateway failure into a Recovery plan. It is a pure
// function of err and the batch's current contents (for asset lookups),
// matching the teacher's pure signalToErr and the switch{case
// errors.Is(err, ...)} dispatch table in commitTransactions — repeated
// classification of the same error yields the same plan (spec.md R1).
func Classify(err error, ops []*Operation) Recovery {
	gwErr, ok := asGatewayError(err)
	if !ok {
		// Parse failure / no result codes: spec.md's table sends this
		// to TransientRetry rather than guessing at a cause.
		return Recovery{TransactionAction: ActionTransientRetry}
	}

	if gwErr.Codes == nil {
		// Transport 5xx or a timeout with no parsed result.
		return Recovery{TransactionAction: ActionTransientRetry}
	}

	if gwErr.Codes.Transaction == codeTxInsufficientBalance {
		return Recovery{TransactionAction: ActionTransientRetry, RefillGas: true}
	}

	plan := Recovery{
		TransactionAction: ActionNone,
		EstablishTrustAt:  map[int]Asset{},
		RefillAssetAt:     map[int]Asset{},
	}
	for i, code := range gwErr.Codes.Operations {
		if i >= len(ops) {
			break
		}
		switch code {
		case codeOpSuccess:
			// keep
		case codeOpNoTrust:
			plan.ConvertToClaim = append(plan.ConvertToClaim, i)
		case codeOpMalformed, codeOpLineFull:
			plan.Invalid = append(plan.Invalid, i)
		case codeOpSrcNoTrust:
			plan.EstablishTrustAt[i] = ops[i].Asset
		case codeOpUnderfunded:
			plan.RefillAssetAt[i] = ops[i].Asset
		default:
			// Any other per-op code: spec.md §4.C treats this as
			// Invalid (DESIGN.md open-question decision #3 — kept
			// transaction-scope and operation-scope recovery
			// separate rather than promoting unknowns to transient).
			plan.Invalid = append(plan.Invalid, i)
		}
	}
	return plan
}

type unwrapper interface{ Unwrap() error }

func asGatewayError(err error) (*GatewayError, bool) {
	for err != nil {
		if ge, ok := err.(*GatewayError); ok {
			return ge, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
