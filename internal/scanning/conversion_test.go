package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}
	return img
}

// onePagePDF builds a single page PDF with a filled rectangle and a valid xref table
func onePagePDF() []byte {
	content := "0 0 1 rg 10 10 80 40 re f"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 100 60] /Contents 4 0 R /Resources << >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

var _ = Describe("JPEGEncoder", func() {
	var (
		encoder     JPEGEncoder
		data        []byte
		contentType string
		out         []byte
		err         error
	)

	JustBeforeEach(func() {
		out, err = encoder.Encode(data, contentType)
	})

	When("the upload is already a JPEG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
			data = buf.Bytes()
			contentType = "image/jpeg"
		})

		It("passes the bytes through", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
		})
	})

	When("the upload is a PNG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage())).To(Succeed())
			data = buf.Bytes()
			contentType = " IMAGE/PNG "
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("re-encodes it as a JPEG with the same bounds", func() {
			Expect(isJPEG(out)).To(BeTrue())
			img, decodeErr := jpeg.Decode(bytes.NewReader(out))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(img.Bounds()).To(Equal(image.Rect(0, 0, 8, 8)))
		})
	})

	When("the upload is mislabeled", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage())).To(Succeed())
			data = buf.Bytes()
			contentType = "application/octet-stream"
		})

		It("sniffs the format from the data", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(isJPEG(out)).To(BeTrue())
		})
	})

	When("the upload is a PDF", func() {
		BeforeEach(func() {
			data = onePagePDF()
			contentType = "application/pdf"
		})

		It("renders the first page as a JPEG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out[:3]).To(Equal([]byte{0xFF, 0xD8, 0xFF}))
			_, decodeErr := jpeg.Decode(bytes.NewReader(out))
			Expect(decodeErr).NotTo(HaveOccurred())
		})
	})

	When("the PDF arrives without a content type", func() {
		BeforeEach(func() {
			data = onePagePDF()
			contentType = ""
		})

		It("detects it from the header", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(isJPEG(out)).To(BeTrue())
		})
	})

	When("the upload claims to be a PDF but is not one", func() {
		BeforeEach(func() {
			data = []byte("not a pdf at all")
			contentType = "application/pdf"
		})

		It("returns an unsupported image error", func() {
			Expect(err).To(MatchError(ErrUnsupportedImage))
		})
	})

	When("the upload is labeled HEIC but cannot be decoded", func() {
		BeforeEach(func() {
			data = []byte("definitely not heic")
			contentType = "image/heic"
		})

		It("returns an unsupported image error", func() {
			Expect(err).To(MatchError(ErrUnsupportedImage))
		})
	})

	When("the upload has a HEIC header but a corrupt body", func() {
		BeforeEach(func() {
			data = append([]byte{0, 0, 0, 24}, []byte("ftypheic0000garbage-after-the-box")...)
			contentType = "application/octet-stream"
		})

		It("returns an unsupported image error", func() {
			Expect(err).To(MatchError(ErrUnsupportedImage))
		})
	})

	When("the upload is not an image", func() {
		BeforeEach(func() {
			data = []byte("fake image data")
			contentType = "image/jpeg"
		})

		It("returns an unsupported image error", func() {
			Expect(err).To(MatchError(ErrUnsupportedImage))
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("detects the heic brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("rejects short data", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})

	It("rejects other ftyp brands", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypmp42")...)
		Expect(isHEICFormat(data)).To(BeFalse())
	})
})
