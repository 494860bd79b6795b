package transport

import serrors "github.com/speech2prompt/core/pkg/errors"

// AckTimeout, IntegrityError and friends are aliases of the shared kinds
// in pkg/errors, so a caller of Transport can compare against one error
// package. pkg/session keeps its own sentinels, which Transport reports
// as ErrIntegrity.
var (
	ErrAckTimeout   = serrors.ErrAckTimeout
	ErrIntegrity    = serrors.ErrIntegrity
	ErrNoSessionKey = serrors.ErrProtocol
	ErrClosed       = serrors.ErrClosed
)
