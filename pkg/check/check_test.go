package check_test

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/application"
	"github.com/luxfi/migrator/pkg/check"
	"github.com/luxfi/migrator/pkg/config"
	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/fixture"
	"github.com/luxfi/migrator/pkg/records"
)

var ctx = context.Background()

// failing is a source check whose pre phase fails with a plain error.
type failing struct{}

func (failing) PreCheck(context.Context, database.Reader) (int, error) {
	return 0, errors.New("boom")
}

func (failing) PostCheck(context.Context, database.Reader, int) error { return nil }

var _ = Describe("Runner", func() {
	var (
		logger               log.Logger
		src, dst             database.Store
		srcBefore, dstBefore database.Store
		runner               *check.Runner
	)

	BeforeEach(func() {
		logger = log.NewLogger("test")
		v := viper.New()
		config.SetDefaults(v)
		v.Set("source.backend", "memdb")
		v.Set("destination.backend", "memdb")
		v.Set("translation.para_ids", []uint16{1000, 2000})
		v.Set("translation.derivation_indices", []uint16{0, 1})

		app := application.New()
		app.Setup("", logger, v)
		cfg, err := app.Settings()
		Expect(err).NotTo(HaveOccurred())

		src, dst = database.NewMemory(), database.NewMemory()
		_, err = fixture.Populate(src, fixture.Options{Accounts: 30, ParaIDs: []uint16{1000, 2000}, PreimageBytes: 5000})
		Expect(err).NotTo(HaveOccurred())
		Expect(fixture.Put(dst, fixture.Account(fixture.ID(500), 7, 3))).To(Succeed())

		srcBefore, err = database.Snapshot(src)
		Expect(err).NotTo(HaveOccurred())
		dstBefore, err = database.Snapshot(dst)
		Expect(err).NotTo(HaveOccurred())

		net, err := app.Wire(cfg, src, dst, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(net.Source.Start(ctx)).To(Succeed())
		_, err = net.Run(ctx, 1000)
		Expect(err).NotTo(HaveOccurred())

		runner = check.NewRunner(logger, check.Default(net.Translator, net.Converter)...)
	})

	It("passes after a complete migration", func() {
		Expect(runner.Checks()).To(ContainElements("stages", "accounts", "preimages", "staking"))
		Expect(runner.Run(ctx, srcBefore, dstBefore, src, dst)).To(Succeed())
	})

	It("reports the failing check and phase", func() {
		Expect(dst.Delete(records.IndexKey(0))).To(Succeed())

		err := runner.Run(ctx, srcBefore, dstBefore, src, dst)
		var ce *core.CheckError
		Expect(errors.As(err, &ce)).To(BeTrue())
		Expect(ce.Check).To(Equal("indices"))
		Expect(ce.Phase).To(Equal(check.PhasePost))
	})

	DescribeTable("fails when a converted record differs on the destination",
		func(name string, corrupt records.Record) {
			Expect(fixture.Put(dst, corrupt)).To(Succeed())

			err := runner.Run(ctx, srcBefore, dstBefore, src, dst)
			var ce *core.CheckError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Check).To(Equal(name))
			Expect(ce.Phase).To(Equal(check.PhasePost))
		},
		Entry("vesting", "vesting", &records.Vesting{Who: fixture.ID(5), Schedules: []records.VestingSchedule{
			{Locked: uint256.NewInt(1), PerBlock: uint256.NewInt(1), Starting: 999},
		}}),
		Entry("proxies", "proxies", &records.Proxies{Delegator: fixture.ID(7), Deposit: uint256.NewInt(20), Proxies: []records.ProxyDefinition{
			{Delegate: fixture.ID(8), Type: records.ProxyAny, Delay: 3},
		}}),
		Entry("pool members", "nom_pools", &records.PoolMember{Member: account.Derive(account.SiblingSovereign(1000), 1), Pool: 2, Points: uint256.NewInt(100)}),
		Entry("scheduler", "scheduler", &records.Agenda{Block: 500}),
		Entry("bounties", "bounties", &records.BountiesMeta{Count: 2}),
	)

	It("fails the accounts check when issuance changes", func() {
		Expect(fixture.Put(dst, fixture.Account(fixture.ID(501), 1, 0))).To(Succeed())

		err := runner.Run(ctx, srcBefore, dstBefore, src, dst)
		var ce *core.CheckError
		Expect(errors.As(err, &ce)).To(BeTrue())
		Expect(ce.Check).To(Equal("accounts"))
	})

	It("requires the pre phase first", func() {
		Expect(runner.RunPost(ctx, src, dst)).NotTo(Succeed())
	})

	It("wraps plain errors", func() {
		r := check.NewRunner(logger, check.Domain[int, struct{}]("failing", failing{}, nil))
		err := r.RunPre(ctx, srcBefore, dstBefore)
		var ce *core.CheckError
		Expect(errors.As(err, &ce)).To(BeTrue())
		Expect(ce.Check).To(Equal("failing"))
		Expect(ce.Phase).To(Equal(check.PhasePre))
		Expect(ce.Msg).To(Equal("boom"))
	})
})

var _ = Describe("Digest", func() {
	It("ignores bookkeeping keys", func() {
		a, b := database.NewMemory(), database.NewMemory()
		for _, db := range []database.Store{a, b} {
			Expect(fixture.Put(db, fixture.Account(fixture.ID(1), 10, 0), fixture.Account(fixture.ID(2), 20, 0))).To(Succeed())
		}
		Expect(b.Put(records.MetaKey("state"), []byte{1})).To(Succeed())

		ha, na, err := check.Digest(a, nil)
		Expect(err).NotTo(HaveOccurred())
		hb, nb, err := check.Digest(b, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(ha).To(Equal(hb))
		Expect(na).To(BeEquivalentTo(2))
		Expect(nb).To(Equal(na))
	})

	It("changes with the content", func() {
		a, b := database.NewMemory(), database.NewMemory()
		Expect(fixture.Put(a, fixture.Account(fixture.ID(1), 10, 0))).To(Succeed())
		Expect(fixture.Put(b, fixture.Account(fixture.ID(1), 11, 0))).To(Succeed())

		ha, _, err := check.Digest(a, records.AccountPrefix)
		Expect(err).NotTo(HaveOccurred())
		hb, _, err := check.Digest(b, records.AccountPrefix)
		Expect(err).NotTo(HaveOccurred())
		Expect(ha).NotTo(Equal(hb))
	})
})
