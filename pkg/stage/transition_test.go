package stage_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/stage"
)

func apply(s stage.State, events ...stage.Event) stage.State {
	for _, ev := range events {
		var err error
		s, err = stage.Transition(s, ev)
		Expect(err).NotTo(HaveOccurred())
	}
	return s
}

var _ = Describe("Transition", func() {
	start := stage.Event{Kind: stage.EventStart}
	ready := stage.Event{Kind: stage.EventDestinationReady}
	exhausted := stage.Event{Kind: stage.EventExhausted}

	It("walks every domain in order", func() {
		s := apply(stage.State{}, start, ready)
		Expect(s.Stage).To(Equal(stage.AccountsMigrating))

		for _, d := range stage.Domains() {
			cur, ok := s.Stage.Domain()
			Expect(ok).To(BeTrue())
			Expect(cur).To(Equal(d))
			s = apply(s, exhausted)
		}
		Expect(s.Stage).To(Equal(stage.SignalMigrationFinish))

		s = apply(s, stage.Event{Kind: stage.EventFinishSent})
		Expect(s.Stage).To(Equal(stage.MigrationDone))
	})

	It("stores the cursor and clears it at the boundary", func() {
		s := apply(stage.State{}, start, ready, stage.Event{Kind: stage.EventProgress, Cursor: []byte("k")})
		Expect(s.Cursor).To(Equal([]byte("k")))
		s = apply(s, exhausted)
		Expect(s.Cursor).To(BeNil())
		Expect(s.Stage).To(Equal(stage.MultisigsMigrating))
	})

	It("does not mutate the input state", func() {
		in := stage.State{Stage: stage.AccountsMigrating, Cursor: []byte("a")}
		_, err := stage.Transition(in, stage.Event{Kind: stage.EventProgress, Cursor: []byte("b")})
		Expect(err).NotTo(HaveOccurred())
		Expect(in.Cursor).To(Equal([]byte("a")))
	})

	It("rejects events that would move backwards", func() {
		s := apply(stage.State{}, start, ready)
		_, err := stage.Transition(s, start)
		Expect(err).To(MatchError(core.ErrInvalidTransition))

		done := stage.State{Stage: stage.MigrationDone}
		_, err = stage.Transition(done, exhausted)
		Expect(err).To(MatchError(core.ErrInvalidTransition))
	})

	Context("halting", func() {
		It("defers a halt to the next domain boundary", func() {
			s := apply(stage.State{}, start, ready, stage.Event{Kind: stage.EventHalt})
			Expect(s.Halted).To(BeFalse())
			Expect(s.HaltRequested).To(BeTrue())

			s = apply(s, exhausted)
			Expect(s.Halted).To(BeTrue())
			Expect(s.Stage).To(Equal(stage.MultisigsMigrating))

			s = apply(s, stage.Event{Kind: stage.EventResume})
			Expect(s.Halted).To(BeFalse())
		})

		It("halts immediately outside a domain", func() {
			s := apply(stage.State{}, stage.Event{Kind: stage.EventHalt})
			Expect(s.Halted).To(BeTrue())
		})
	})

	It("lets the operator force a stage", func() {
		s := apply(stage.State{Stage: stage.VestingMigrating, Cursor: []byte("x")},
			stage.Event{Kind: stage.EventForce, Target: stage.IndicesMigrating})
		Expect(s.Stage).To(Equal(stage.IndicesMigrating))
		Expect(s.Cursor).To(BeNil())
	})

	It("round-trips stage names", func() {
		for st := stage.Pending; st <= stage.MigrationDone; st++ {
			parsed, ok := stage.ParseStage(st.String())
			Expect(ok).To(BeTrue())
			Expect(parsed).To(Equal(st))
		}
	})
})

var _ = Describe("TransitionDestination", func() {
	It("only moves forward", func() {
		s, err := stage.TransitionDestination(stage.DestinationPending, stage.DataMigrationOngoing)
		Expect(err).NotTo(HaveOccurred())
		s, err = stage.TransitionDestination(s, stage.DataMigrationOngoing)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal(stage.DataMigrationOngoing))

		_, err = stage.TransitionDestination(stage.DestinationDone, stage.DestinationPending)
		Expect(err).To(MatchError(core.ErrInvalidTransition))
	})
})
