package rucfile_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hvborda/lineas/pkg/rucfile"
)

func writeInput(name, content string) string {
	path := filepath.Join(GinkgoT().TempDir(), name)
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
	return path
}

var _ = Describe("Read", func() {
	It("keeps only valid 11-digit ids in file order", func() {
		path := writeInput("rucs.csv",
			"RUC\n"+
				"20100047218\n"+
				"20600055519\n"+
				"123\n"+
				"20100047218\n"+
				"abc\n"+
				"10234567891\n")

		ids, total, err := rucfile.Read(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(6))
		Expect(ids).To(Equal([]string{"20100047218", "20600055519", "10234567891"}))
	})

	It("strips separators before validating", func() {
		path := writeInput("rucs.csv", "20-10004.7218\n2060005551-9\n")

		ids, _, err := rucfile.Read(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{"20100047218", "20600055519"}))
	})

	It("reads only the first column", func() {
		path := writeInput("rucs.csv", "20100047218,Empresa Uno\n20600055519,Empresa Dos\n")

		ids, _, err := rucfile.Read(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(HaveLen(2))
	})

	It("accepts plain text files", func() {
		path := writeInput("rucs.txt", "20100047218\n")

		ids, _, err := rucfile.Read(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{"20100047218"}))
	})

	It("rejects unsupported formats", func() {
		path := writeInput("rucs.xlsx", "20100047218\n")

		_, _, err := rucfile.Read(path)
		Expect(err).To(MatchError(ContainSubstring("unsupported input format")))
	})

	It("fails on a missing file", func() {
		_, _, err := rucfile.Read(filepath.Join(GinkgoT().TempDir(), "nope.csv"))
		Expect(err).To(HaveOccurred())
	})

	It("returns no ids for an input with only invalid rows", func() {
		path := writeInput("rucs.csv", "RUC\nnot-a-ruc\n99\n")

		ids, total, err := rucfile.Read(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(3))
		Expect(ids).To(BeEmpty())
	})
})
