package checker

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/freshcheck/internal/reminder"
)

var _ = Describe("Server", func() {
	var (
		service     *Service
		recognizer  *mockRecognizer
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	// send routes one request through the server under test
	send := func(req *http.Request) *http.Response {
		ghttpServer.AppendHandlers(server.ServeHTTP)
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	newRequest := func(method, path string, body io.Reader) *http.Request {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		return req
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	photoUpload := func(filename, contentType string, data []byte) (*bytes.Buffer, string) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := writer.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())
		return body, writer.FormDataContentType()
	}

	BeforeEach(func() {
		recognizer = &mockRecognizer{text: "16.07.2025"}
		auth = BasicAuth{}
		ghttpServer = ghttp.NewServer()
		DeferCleanup(ghttpServer.Close)
	})

	JustBeforeEach(func() {
		var err error
		service, err = NewService(Dependencies{
			Preprocessor: newPreprocessor(),
			Recognizer:   recognizer,
			Registry:     reminder.NewRegistry(nil),
			Messenger:    newMockMessenger(),
			Clock:        fixedClock(2025, time.July, 20),
		}, Config{ReminderInterval: time.Hour})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(service.Close)
		server = NewServerWithMux(service, auth, http.NewServeMux())
	})

	Describe("GET /health", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
		})

		It("responds without credentials", func() {
			resp := send(newRequest(http.MethodGet, "/health", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var body map[string]string
			decode(resp, &body)
			Expect(body).To(HaveKeyWithValue("status", "ok"))
		})
	})

	Describe("POST /api/conversations/{id}/photos", func() {
		It("returns the reply and result", func() {
			body, ct := photoUpload("label.png", "image/png", photoPNG())
			req := newRequest(http.MethodPost, "/api/conversations/c1/photos", body)
			req.Header.Set("Content-Type", ct)

			resp := send(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var reply struct {
				Reply  string `json:"reply"`
				Result struct {
					RecognizedText string `json:"recognized_text"`
					Candidate      struct {
						Format string `json:"format"`
					} `json:"candidate"`
					Freshness struct {
						Status    string `json:"status"`
						DaysDelta int    `json:"days_delta"`
					} `json:"freshness"`
				} `json:"result"`
			}
			decode(resp, &reply)
			Expect(reply.Reply).To(Equal("2025-07-16: expired 4 days ago."))
			Expect(reply.Result.RecognizedText).To(Equal("16.07.2025"))
			Expect(reply.Result.Candidate.Format).To(Equal("NUMERIC_DMY"))
			Expect(reply.Result.Freshness.Status).To(Equal("EXPIRED"))
			Expect(reply.Result.Freshness.DaysDelta).To(Equal(-4))
		})

		It("detects the content type from the file extension", func() {
			body, ct := photoUpload("label.png", "", photoPNG())
			req := newRequest(http.MethodPost, "/api/conversations/c1/photos", body)
			req.Header.Set("Content-Type", ct)

			resp := send(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(recognizer.calls).To(Equal(1))
		})

		It("rejects uploads above the size limit", func() {
			server.SetMaxUploadSize(1024)
			body, ct := photoUpload("label.jpg", "image/jpeg", bytes.Repeat([]byte{0xff}, 4096))
			req := newRequest(http.MethodPost, "/api/conversations/c1/photos", body)
			req.Header.Set("Content-Type", ct)

			resp := send(req)
			Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
			var errBody map[string]string
			decode(resp, &errBody)
			Expect(errBody["error"]).To(ContainSubstring("1.024kB"))
			Expect(recognizer.calls).To(Equal(0))
		})

		It("rejects requests without a file", func() {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			Expect(writer.WriteField("note", "no file")).To(Succeed())
			Expect(writer.Close()).To(Succeed())
			req := newRequest(http.MethodPost, "/api/conversations/c1/photos", body)
			req.Header.Set("Content-Type", writer.FormDataContentType())

			resp := send(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /api/conversations/{id}/messages", func() {
		It("dispatches commands", func() {
			req := newRequest(http.MethodPost, "/api/conversations/c1/messages", bytes.NewBufferString(`{"text":"/start"}`))
			resp := send(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var reply Reply
			decode(resp, &reply)
			Expect(reply.Text).To(HavePrefix("Hi!"))
			Expect(service.registry.IsSubscribed("c1")).To(BeTrue())
		})

		It("rejects malformed bodies", func() {
			resp := send(newRequest(http.MethodPost, "/api/conversations/c1/messages", bytes.NewBufferString("{")))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("subscription routes", func() {
		It("returns 404 before subscribing", func() {
			resp := send(newRequest(http.MethodGet, "/api/conversations/c1/subscription", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("subscribes, reports and unsubscribes", func() {
			resp := send(newRequest(http.MethodPut, "/api/conversations/c1/subscription", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = send(newRequest(http.MethodGet, "/api/conversations/c1/subscription", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var sub map[string]any
			decode(resp, &sub)
			Expect(sub).To(HaveKeyWithValue("conversation_id", "c1"))

			resp = send(newRequest(http.MethodDelete, "/api/conversations/c1/subscription", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var reply Reply
			decode(resp, &reply)
			Expect(reply.Text).To(Equal("Unsubscribed. No more reminders."))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
		})

		It("rejects missing credentials", func() {
			resp := send(newRequest(http.MethodGet, "/api/conversations/c1/subscription", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("rejects wrong credentials", func() {
			req := newRequest(http.MethodGet, "/api/conversations/c1/subscription", nil)
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:wrong")))
			resp := send(req)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("accepts valid credentials", func() {
			req := newRequest(http.MethodPut, "/api/conversations/c1/subscription", nil)
			req.SetBasicAuth("user", "pass")
			resp := send(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})

var _ = DescribeTable("detectContentType",
	func(header, filename string, data []byte, expected string) {
		Expect(detectContentType(header, filename, data)).To(Equal(expected))
	},
	Entry("uses the part header", "Image/JPEG ", "x.png", nil, "image/jpeg"),
	Entry("falls back to the extension", "", "IMG_0001.HEIC", nil, "image/heic"),
	Entry("ignores octet-stream headers", "application/octet-stream", "scan.pdf", nil, "application/pdf"),
	Entry("sniffs unknown files", "", "blob", []byte("\x89PNG\r\n\x1a\n0000"), "image/png"),
)
