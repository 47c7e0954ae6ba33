package optimize

import (
	"math"
)

// AdaptiveSettings are settings of the random walk step size
// adaptation during burn-in.
type AdaptiveSettings struct {
	// SD is the initial standard deviation.
	SD float64 `yaml:"sd"`
	// K is the batch size; the standard deviation is updated after
	// every K proposals.
	K int `yaml:"k"`
	// Target is the target acceptance rate.
	Target float64 `yaml:"target"`
	// C is a Robbins-Monro algorithm parameter
	C float64 `yaml:"c"`
	// Nu is a Robbins-Monro algorithm parameter
	Nu float64 `yaml:"nu"`
	// MinSD and MaxSD limit the standard deviation.
	MinSD float64 `yaml:"min_sd"`
	MaxSD float64 `yaml:"max_sd"`
}

// NewAdaptiveSettings creates new settings for step size adaptation.
func NewAdaptiveSettings() *AdaptiveSettings {
	return &AdaptiveSettings{
		SD:     0.5,
		K:      20,
		Target: 0.44,
		C:      1,
		Nu:     0,
		MinSD:  1e-3,
		MaxSD:  10,
	}
}

// StepSize is the standard deviation of a random walk proposal. While
// not frozen it is adapted with the Robbins-Monro algorithm so that
// the acceptance rate approaches the target.
type StepSize struct {
	*AdaptiveSettings
	sd     float64
	t      int
	bacc   int
	bn     int
	frozen bool

	// Proposed and Accepted are the total counts of proposals.
	Proposed int
	Accepted int
}

// NewStepSize creates a new adaptive step size.
func (as *AdaptiveSettings) NewStepSize() *StepSize {
	if as.SD <= 0 {
		panic("SD should be > 0")
	}
	if as.K < 1 {
		panic("K should be >= 1")
	}
	return &StepSize{
		AdaptiveSettings: as,
		sd:               as.SD,
	}
}

// SD returns the current standard deviation.
func (st *StepSize) SD() float64 {
	return st.sd
}

// Freeze stops the adaptation.
func (st *StepSize) Freeze() {
	st.frozen = true
}

// Frozen returns true if the adaptation was stopped.
func (st *StepSize) Frozen() bool {
	return st.frozen
}

// Rate returns the total acceptance rate.
func (st *StepSize) Rate() float64 {
	if st.Proposed == 0 {
		return math.NaN()
	}
	return float64(st.Accepted) / float64(st.Proposed)
}

// RobbinsMonro returns the gain of the current batch.
func (st *StepSize) RobbinsMonro() (gamma float64) {
	beta := 1 / math.Max(1, 1+st.Nu)
	gamma = st.C / math.Pow(float64(st.t+1), beta)
	return
}

// Record records the outcome of a proposal and updates the standard
// deviation at the end of a batch.
func (st *StepSize) Record(accepted bool) {
	st.Proposed++
	if accepted {
		st.Accepted++
	}
	if st.frozen {
		return
	}
	st.bn++
	if accepted {
		st.bacc++
	}
	if st.bn < st.K {
		return
	}
	rate := float64(st.bacc) / float64(st.bn)
	lsd := math.Log(st.sd) + st.RobbinsMonro()*(rate-st.Target)
	st.sd = math.Min(math.Max(math.Exp(lsd), st.MinSD), st.MaxSD)
	st.t++
	st.bacc = 0
	st.bn = 0
}
