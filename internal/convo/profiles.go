package convo

import (
	"github.com/parleylabs/parley-core/internal/language"
)

// Profiles pairs the language the user speaks with the language the
// assistant answers in. A turn works from one immutable snapshot; swaps
// apply from the next turn.
type Profiles struct {
	Input  language.Profile
	Output language.Profile
}
