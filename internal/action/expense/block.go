// Package expense writes follow-up decisions back to expense records.
package expense

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/action"
	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/store"
)

const StepBlock = "expense_block"

// Block marks an unusual expense as blocked. Blocking an already blocked
// expense succeeds without changing anything.
type Block struct{ expenses store.ExpenseStore }

func NewBlock(s store.ExpenseStore) *Block { return &Block{expenses: s} }

func (b *Block) Name() string { return StepBlock }

func (b *Block) Applies(a event.Alert) bool {
	e, ok := a.(*event.BusinessUnusualExpenseEvent)
	return ok && e.ShouldBlockExpense()
}

func (b *Block) Execute(ctx context.Context, a event.Alert) (*action.Result, error) {
	e, ok := a.(*event.BusinessUnusualExpenseEvent)
	if !ok {
		return nil, fmt.Errorf("expense_block: unexpected alert %s", a.Type())
	}
	changed, err := b.expenses.BlockExpense(ctx, e.Expense.ID, Reason(e))
	if err != nil {
		return &action.Result{Step: StepBlock, Message: err.Error()},
			fmt.Errorf("failed to block expense %s: %w", e.Expense.ID, err)
	}
	msg := "blocked expense " + e.Expense.ID
	if !changed {
		msg = "expense " + e.Expense.ID + " already blocked"
	}
	return &action.Result{Step: StepBlock, Success: true, Message: msg}, nil
}

// Reason is the note stored next to the blocked status.
func Reason(e *event.BusinessUnusualExpenseEvent) string {
	if e.IsSuspicious {
		return "flagged as suspicious"
	}
	return fmt.Sprintf("amount is %.1fx the submitter's average", e.Deviation())
}
