package core_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/loader"
	"github.com/sarchlab/tomsim/timing/core"
	"github.com/sarchlab/tomsim/timing/latency"
)

func parse(src string) []insts.Instruction {
	program, err := loader.Parse(strings.NewReader(src))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return program
}

var _ = Describe("Core", func() {
	var cfg *latency.Config

	BeforeEach(func() {
		cfg = latency.DefaultConfig()
		cfg.MemorySize = 256
	})

	It("should reject an invalid config", func() {
		cfg.ROBCapacity = 0
		_, err := core.NewCore(nil, cfg)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("invalid config"))
	})

	It("should run a program over a preloaded data image", func() {
		c, err := core.NewCore(parse(`
LOAD R2, 5(R0)
ADD  R3, R2, R2
`), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.InitMemory(map[int]emu.Word{5: 11})).To(Succeed())

		cycles, quiesced, err := c.Run(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(quiesced).To(BeTrue())
		Expect(cycles).To(BeNumerically(">", 0))

		Expect(c.RegFile().Read(2)).To(Equal(emu.Word(11)))
		Expect(c.RegFile().Read(3)).To(Equal(emu.Word(22)))
		Expect(c.Stats().Committed).To(Equal(uint64(2)))
		Expect(c.Timelines()).To(HaveLen(2))
	})

	It("should stop at the cycle bound without quiescing", func() {
		c, err := core.NewCore(parse("MUL R1, R2, R3"), cfg)
		Expect(err).NotTo(HaveOccurred())

		cycles, quiesced, err := c.Run(3)
		Expect(err).NotTo(HaveOccurred())
		Expect(quiesced).To(BeFalse())
		Expect(cycles).To(Equal(uint64(3)))
		Expect(c.Done()).To(BeFalse())
	})

	It("should reject a data image outside memory", func() {
		c, err := core.NewCore(nil, cfg)
		Expect(err).NotTo(HaveOccurred())

		err = c.InitMemory(map[int]emu.Word{1024: 1})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("data image"))
	})

	It("should surface a fatal engine error from Run", func() {
		c, err := core.NewCore(parse("LOAD R1, -1(R0)"), cfg)
		Expect(err).NotTo(HaveOccurred())

		_, quiesced, err := c.Run(0)
		Expect(err).To(HaveOccurred())
		Expect(quiesced).To(BeFalse())
		Expect(err.Error()).To(ContainSubstring("out of bounds"))
	})
})
