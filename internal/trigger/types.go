package trigger

// #region code
// Code is a single byte written to the EEG amplifier's trigger channel.
// Zero means "no trigger" and is never sent.
type Code uint8

// #endregion code

// #region port
// Port delivers trigger codes to recording hardware.
type Port interface {
	Signal(code Code) error
	Close() error
}

// #endregion port

// #region names
// Names of the codes in DefaultTable. Nested groups are joined with dots.
const (
	StateEnd   = "STATEEND"
	TrialEnd   = "TRIALEND"
	BlockEnd   = "BLOCKEND"
	ITI        = "ITI"
	Fixation   = "FIXATION"
	Break      = "BREAK"
	InterBlock = "INTERBLOCK"
	Abort      = "ABORT"
	Error      = "ERROR"
	ExpEnd     = "EXPEND"
	QueryTrue  = "QUERY.TRUE"
	QueryFalse = "QUERY.FALSE"
	Mask       = "MASK"
)

// #endregion names
