package migration_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/luxfi/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/luxfi/migrator/pkg/application"
	"github.com/luxfi/migrator/pkg/check"
	"github.com/luxfi/migrator/pkg/config"
	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/fixture"
	"github.com/luxfi/migrator/pkg/records"
	"github.com/luxfi/migrator/pkg/stage"
)

var ctx = context.Background()

var _ = Describe("Migration Pipeline", func() {
	var (
		tempDir string
		app     *application.Migrator
		cfg     *config.Config
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "migrator-pipeline-*")
		Expect(err).NotTo(HaveOccurred())

		v := viper.New()
		config.SetDefaults(v)
		v.Set("source.db_path", filepath.Join(tempDir, "relay"))
		v.Set("destination.db_path", filepath.Join(tempDir, "hub"))
		v.Set("limits.max_items_per_block", 7)
		v.Set("limits.max_message_size", 2048)
		v.Set("translation.para_ids", []uint16{1000, 2000})
		v.Set("translation.derivation_indices", []uint16{0, 1})

		app = application.New()
		app.Setup(tempDir, log.NewLogger("test"), v)
		cfg, err = app.Settings()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	open := func() (database.Store, database.Store) {
		src, err := app.OpenChain(cfg.Source)
		Expect(err).NotTo(HaveOccurred())
		dst, err := app.OpenChain(cfg.Destination)
		Expect(err).NotTo(HaveOccurred())
		return src, dst
	}

	Context("Full Pipeline Test", func() {
		It("should complete a migration across restarts", func() {
			By("Step 1: Seeding the source chain")
			src, dst := open()
			_, err := fixture.Populate(src, fixture.Options{
				Accounts:      60,
				ParaIDs:       []uint16{1000, 2000},
				PreimageBytes: 20_000,
			})
			Expect(err).NotTo(HaveOccurred())

			By("Step 2: Taking snapshots for verification")
			srcBefore, err := database.Snapshot(src)
			Expect(err).NotTo(HaveOccurred())
			defer srcBefore.Close()
			dstBefore, err := database.Snapshot(dst)
			Expect(err).NotTo(HaveOccurred())
			defer dstBefore.Close()

			By("Step 3: Starting the migration")
			net, err := app.Wire(cfg, src, dst, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(net.Source.Start(ctx)).To(Succeed())

			By("Step 4: Running in short sessions, reopening the stores in between")
			sessions := 0
			for !net.Done() {
				Expect(sessions).To(BeNumerically("<", 200), "migration does not converge")
				_, err := net.Run(ctx, 5)
				if err != nil {
					Expect(err.Error()).To(ContainSubstring("not done"))
				}
				Expect(src.Close()).To(Succeed())
				Expect(dst.Close()).To(Succeed())

				src, dst = open()
				net, err = app.Wire(cfg, src, dst, nil)
				Expect(err).NotTo(HaveOccurred())
				sessions++
			}
			defer src.Close()
			defer dst.Close()
			Expect(sessions).To(BeNumerically(">", 1))
			Expect(net.SourceStage()).To(Equal(stage.MigrationDone))
			Expect(net.DestinationStage()).To(Equal(stage.DestinationDone))

			By("Step 5: Verifying the migration")
			runner := check.NewRunner(app.Log, check.Default(net.Translator, net.Converter)...)
			Expect(runner.Run(ctx, srcBefore, dstBefore, src, dst)).To(Succeed())

			By("Step 6: Confirming the source only holds bookkeeping")
			_, n, err := check.Digest(src, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
			queued, err := net.Outbox.Len(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(queued).To(BeZero())
		})
	})

	Context("Halting", func() {
		It("should stop at a domain boundary and resume after a restart", func() {
			src, dst := open()
			_, err := fixture.Populate(src, fixture.Options{Accounts: 30, PreimageBytes: 3000})
			Expect(err).NotTo(HaveOccurred())

			net, err := app.Wire(cfg, src, dst, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(net.Source.Start(ctx)).To(Succeed())
			for net.SourceStage() != stage.AccountsMigrating {
				_, _, err := net.Block(ctx)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(net.Source.Halt()).To(Succeed())

			_, err = net.Run(ctx, 1000)
			Expect(errors.Is(err, core.ErrHalted)).To(BeTrue())
			Expect(net.SourceStage()).To(Equal(stage.MultisigsMigrating))
			n, err := database.Count(src, records.AccountPrefix)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
			n, err = database.Count(src, records.MultisigPrefix)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).NotTo(BeZero())

			Expect(src.Close()).To(Succeed())
			Expect(dst.Close()).To(Succeed())
			src, dst = open()
			defer src.Close()
			defer dst.Close()

			net, err = app.Wire(cfg, src, dst, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(net.Source.State().Halted).To(BeTrue())
			Expect(net.Source.Resume()).To(Succeed())
			_, err = net.Run(ctx, 1000)
			Expect(err).NotTo(HaveOccurred())
			Expect(net.Done()).To(BeTrue())
		})
	})

	Context("Error Handling", func() {
		It("should reject a store path shared by both chains", func() {
			v := viper.New()
			config.SetDefaults(v)
			v.Set("source.db_path", filepath.Join(tempDir, "same"))
			v.Set("destination.db_path", filepath.Join(tempDir, "same"))
			app.Setup(tempDir, app.Log, v)

			_, err := app.Settings()
			var cerr core.ConfigError
			Expect(errors.As(err, &cerr)).To(BeTrue())
		})
	})
})
