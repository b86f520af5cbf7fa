package decompress

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"

	"github.com/andybalholm/brotli"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func gzipped(s string) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	Expect(err).NotTo(HaveOccurred())
	Expect(zw.Close()).To(Succeed())
	return buf.Bytes()
}

func zlibbed(s string) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	Expect(err).NotTo(HaveOccurred())
	Expect(zw.Close()).To(Succeed())
	return buf.Bytes()
}

func brotlied(s string) []byte {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write([]byte(s))
	Expect(err).NotTo(HaveOccurred())
	Expect(bw.Close()).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Decode", func() {
	const payload = `{"ok":true}`

	It("decompresses gzip bodies", func() {
		out, err := Decode("gzip", gzipped(payload))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(payload))
	})

	It("decompresses deflate (zlib) bodies", func() {
		out, err := Decode("deflate", zlibbed(payload))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(payload))
	})

	It("decompresses brotli bodies", func() {
		out, err := Decode("br", brotlied(payload))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(payload))
	})

	It("passes through an absent encoding unchanged", func() {
		out, err := Decode("", []byte(payload))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(payload))
	})

	It("passes through an unknown encoding unchanged", func() {
		out, err := Decode("zstd", []byte(payload))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(payload))
	})

	It("returns an error for a corrupt gzip body", func() {
		_, err := Decode("gzip", []byte("definitely not gzip"))
		Expect(err).To(HaveOccurred())
	})
})
