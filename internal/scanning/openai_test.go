package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// chatCompletion builds an OpenAI style response carrying content
func chatCompletion(content *string) map[string]interface{} {
	message := map[string]interface{}{"role": "assistant", "content": nil}
	if content != nil {
		message["content"] = *content
	}
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"index": 0, "message": message},
		},
	}
}

var _ = Describe("OpenAI", func() {
	var (
		server    *ghttp.Server
		scanner   *OpenAI
		jpegData  []byte
		items     []ParsedItem
		err       error
		reqBodies [][]byte
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		reqBodies = nil
		jpegData = []byte{0xFF, 0xD8, 0xFF, 0xE0, 'j', 'p', 'g'}

		var newErr error
		scanner, newErr = NewOpenAI("test-key", server.URL()+"/v1/", "gpt-4o", 5*time.Second)
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	captureBody := func(w http.ResponseWriter, r *http.Request) {
		body, readErr := io.ReadAll(r.Body)
		Expect(readErr).NotTo(HaveOccurred())
		reqBodies = append(reqBodies, body)
	}

	JustBeforeEach(func() {
		items, err = scanner.Analyze(context.Background(), jpegData)
	})

	When("the service returns an item list", func() {
		BeforeEach(func() {
			content := `[{"name":"Apples","quantity":2},{"name":"Milk","quantity":1,"unit":"gallon"}]`
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				ghttp.VerifyContentType("application/json"),
				captureBody,
				ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion(&content)),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the parsed items", func() {
			Expect(items).To(Equal([]ParsedItem{
				{Name: "Apples", Quantity: 2},
				{Name: "Milk", Quantity: 1, Unit: "gallon"},
			}))
		})

		It("should send the image as a base64 JPEG data URL alongside the prompt", func() {
			Expect(reqBodies).To(HaveLen(1))
			var req openAIChatRequest
			Expect(json.Unmarshal(reqBodies[0], &req)).To(Succeed())
			Expect(req.Model).To(Equal("gpt-4o"))
			Expect(req.Messages).To(HaveLen(1))
			Expect(req.Messages[0].Content).To(HaveLen(2))
			Expect(req.Messages[0].Content[0].Text).To(Equal(extractionPrompt))
			Expect(req.Messages[0].Content[1].ImageURL.URL).To(Equal(
				"data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData),
			))
		})

		It("should make exactly one request", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the service returns no content", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion(nil)))
		})

		It("returns a service error", func() {
			Expect(err).To(MatchError(ErrAnalysisService))
		})
	})

	When("the service returns no choices", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{"choices": []interface{}{}}))
		})

		It("returns a service error", func() {
			Expect(err).To(MatchError(ErrAnalysisService))
		})
	})

	When("the content is not valid JSON", func() {
		BeforeEach(func() {
			content := "I could not read this receipt."
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion(&content)))
		})

		It("returns a parse error", func() {
			Expect(err).To(MatchError(ErrAnalysisParse))
		})
	})

	When("the service fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, `{"error":"boom"}`))
		})

		It("returns a service error", func() {
			Expect(err).To(MatchError(ErrAnalysisService))
		})

		It("does not retry", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the service is unreachable", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("returns a service error", func() {
			Expect(err).To(MatchError(ErrAnalysisService))
		})
	})
})

var _ = Describe("NewOpenAI", func() {
	It("requires an api key", func() {
		_, err := NewOpenAI("", "", "", 0)
		Expect(err).To(HaveOccurred())
	})

	It("applies defaults", func() {
		o, err := NewOpenAI("key", "", "", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(o.baseURL).To(Equal("https://api.openai.com/v1"))
		Expect(o.model).To(Equal("gpt-4o"))
		Expect(o.client.Timeout).To(Equal(120 * time.Second))
	})
})
