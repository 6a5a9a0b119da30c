package log

import "context"

// RecordCreated logs a ledger write through the request logger in ctx.
func RecordCreated(ctx context.Context, kind, userID, recordID, amount, label string) {
	f := NewFields().WithRecord(userID, recordID, amount, label).WithOperation(OpCreate)
	f[FieldKind] = kind
	FromContext(ctx).InfoContext(ctx, "Ledger record created", f.ToSlice()...)
}

// Failed logs err at error level through the request logger in ctx. A
// component in fields overrides the logger's own.
func Failed(ctx context.Context, msg string, err error, op string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	l := FromContext(ctx)
	if c, ok := fields[FieldComponent].(string); ok && c != "" {
		l = l.WithComponent(c)
	}
	l.ErrorContext(ctx, msg, fields.WithError(err).WithOperation(op).ToSlice()...)
}
