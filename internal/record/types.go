package record

// Transaction is a cash-in or cash-out entry.
type Transaction struct {
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Type      string  `json:"type" validate:"required,oneof=in out"`
	Amount    float64 `json:"amount" validate:"gt=0"`
	Remark    string  `json:"remark" validate:"required"`
	User      string  `json:"user" validate:"required"`
	Timestamp int64   `json:"timestamp" validate:"gt=0"`
}

// PendingPayment is an amount still to be paid, recorded before it is settled.
type PendingPayment struct {
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Amount    float64 `json:"amount" validate:"gt=0"`
	Remark    string  `json:"remark" validate:"required"`
	User      string  `json:"user" validate:"required"`
	Timestamp int64   `json:"timestamp" validate:"gt=0"`
}

// MeterReading is a utility meter value captured on a date.
type MeterReading struct {
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Reading   float64 `json:"reading" validate:"gte=0"`
	Remark    string  `json:"remark"`
	User      string  `json:"user" validate:"required"`
	Timestamp int64   `json:"timestamp" validate:"gt=0"`
}

// Note is a free-text note.
type Note struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Title     string `json:"title" validate:"required"`
	Content   string `json:"content" validate:"required"`
	User      string `json:"user" validate:"required"`
	Timestamp int64  `json:"timestamp" validate:"gt=0"`
}
