package check

import (
	"context"

	"github.com/luxfi/migrator/pkg/controller"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/stage"
)

// Stages checks that both chains start pending and end done.
type Stages struct{}

func (Stages) PreCheck(_ context.Context, src database.Reader) (stage.Stage, error) {
	st, err := controller.LoadState(src)
	if err != nil {
		return 0, err
	}
	if st.Stage != stage.Pending {
		return st.Stage, failf("source migration already in %s", st.Stage)
	}
	return st.Stage, nil
}

func (Stages) PostCheck(_ context.Context, src database.Reader, _ stage.Stage) error {
	st, err := controller.LoadState(src)
	if err != nil {
		return err
	}
	if st.Stage != stage.MigrationDone {
		return failf("source migration in %s", st.Stage)
	}
	return nil
}

// DestinationStages is the destination side of Stages.
type DestinationStages struct{}

func (DestinationStages) PreCheck(_ context.Context, dst database.Reader, _ stage.Stage) (stage.DestinationStage, error) {
	st, err := controller.LoadDestinationStage(dst)
	if err != nil {
		return 0, err
	}
	if st != stage.DestinationPending {
		return st, failf("destination migration already in %s", st)
	}
	return st, nil
}

func (DestinationStages) PostCheck(_ context.Context, dst database.Reader, _ stage.Stage, _ stage.DestinationStage) error {
	st, err := controller.LoadDestinationStage(dst)
	if err != nil {
		return err
	}
	if st != stage.DestinationDone {
		return failf("destination migration in %s", st)
	}
	return nil
}
