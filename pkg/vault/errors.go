package vault

import "errors"

// Every operation either fully applies or returns one of these and leaves the
// vault untouched.
var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidRecipient   = errors.New("invalid recipient")
	ErrInvalidCap         = errors.New("cap must be positive")
	ErrCapExceeded        = errors.New("deposit exceeds cap")
	ErrExceedsAvailable   = errors.New("exceeds available shares")
	ErrExistingWithdrawal = errors.New("existing withdrawal not completed")
	ErrNotInitiated       = errors.New("withdrawal not initiated")
	ErrRoundInProgress    = errors.New("round not closed")
	ErrRoundClosed        = errors.New("round closed")
	ErrRoundOpened        = errors.New("round opened")
	ErrCooldownNotElapsed = errors.New("cooldown not elapsed since round close")
	ErrActivePosition     = errors.New("cannot clear active position")
	ErrInvalidFee         = errors.New("invalid fee")
	ErrRecipientUnchanged = errors.New("must be new fee recipient")
	ErrInvalidPrice       = errors.New("invalid asset per share")
	ErrOverflow           = errors.New("value overflows storage width")
	ErrPremiumTooLow      = errors.New("premium below minimum")
	ErrBadTrade           = errors.New("trade rejected")
	ErrNoStrategy         = errors.New("strategy not configured")
)
