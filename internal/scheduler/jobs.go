package scheduler

// SynthesisRunner is implemented by the lesson synthesis service
type SynthesisRunner interface {
	Synthesize() error
	CheckDecay() error
	RebuildFactors() error
}

// SynthesisJob runs the lesson synthesis pass
type SynthesisJob struct {
	runner SynthesisRunner
}

func NewSynthesisJob(runner SynthesisRunner) *SynthesisJob {
	return &SynthesisJob{runner: runner}
}

func (j *SynthesisJob) Name() string { return "lesson_synthesis" }
func (j *SynthesisJob) Run() error   { return j.runner.Synthesize() }

// DecayJob runs the lesson decay check
type DecayJob struct {
	runner SynthesisRunner
}

func NewDecayJob(runner SynthesisRunner) *DecayJob {
	return &DecayJob{runner: runner}
}

func (j *DecayJob) Name() string { return "lesson_decay" }
func (j *DecayJob) Run() error   { return j.runner.CheckDecay() }

// LatentJob rebuilds the latent factor clustering
type LatentJob struct {
	runner SynthesisRunner
}

func NewLatentJob(runner SynthesisRunner) *LatentJob {
	return &LatentJob{runner: runner}
}

func (j *LatentJob) Name() string { return "latent_factors" }
func (j *LatentJob) Run() error   { return j.runner.RebuildFactors() }
