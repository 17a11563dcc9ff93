package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"
	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/pkg/httpretry"
)

var sample = Message{
	DeliveryID:  "d-123",
	RecipientID: "u1",
	Content: domain.Rendered{
		TemplateID: "tpl_come_back", Title: "We miss you", Body: "Come back <soon>", ActionURL: "app://home",
	},
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

func TestSESAdapter(t *testing.T) {
	ses := &fakeSES{}
	a := NewSESAdapter(ses, "Notify <hi@example.com>", "tracking")
	msg := sample
	msg.Address = "ana@example.com"

	r, err := a.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", r.ProviderMessageID)
	assert.Equal(t, []string{"ana@example.com"}, ses.input.Destination.ToAddresses)
	assert.Equal(t, "We miss you", *ses.input.Content.Simple.Subject.Data)
	assert.Contains(t, *ses.input.Content.Simple.Body.Html.Data, "Come back &lt;soon&gt;")
	assert.Equal(t, "tracking", *ses.input.ConfigurationSetName)
	assert.Equal(t, "delivery_id", *ses.input.EmailTags[0].Name)
	assert.Equal(t, "d-123", *ses.input.EmailTags[0].Value)

	assert.NotContains(t, *ses.input.Content.Simple.Body.Html.Data, "<img")

	msg.OpenPixelURL = "https://t.example.com/track/open/d-123/sig?a=1&b=2"
	_, err = a.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Contains(t, *ses.input.Content.Simple.Body.Html.Data,
		`<img src="https://t.example.com/track/open/d-123/sig?a=1&amp;b=2" width="1" height="1"`)
	assert.NotContains(t, *ses.input.Content.Simple.Body.Text.Data, "track/open")

	ses.err = errors.New("MessageRejected")
	_, err = a.Send(context.Background(), msg)
	assert.Error(t, err)
}

type fakeResend struct {
	req *resend.SendEmailRequest
}

func (f *fakeResend) SendWithContext(_ context.Context, req *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.req = req
	return &resend.SendEmailResponse{Id: "re_1"}, nil
}

func TestResendAdapter(t *testing.T) {
	fake := &fakeResend{}
	a := &ResendAdapter{emails: fake, from: "hi@example.com"}
	msg := sample
	msg.Address = "ana@example.com"

	r, err := a.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "re_1", r.ProviderMessageID)
	assert.Equal(t, "We miss you", fake.req.Subject)
	assert.Equal(t, "Come back <soon>\n\napp://home", fake.req.Text)
	assert.Equal(t, "d-123", fake.req.Tags[0].Value)
}

func TestPushAdapter(t *testing.T) {
	var got pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"status":"ok","id":"ticket-9"}}`)
	}))
	defer srv.Close()

	a := NewPushAdapter(srv.Client(), srv.URL, "tok")
	msg := sample
	msg.Address = "ExponentPushToken[abc]"

	r, err := a.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "ticket-9", r.ProviderMessageID)
	assert.Equal(t, "ExponentPushToken[abc]", got.To)
	assert.Equal(t, "d-123", got.Data["deliveryId"])
	assert.Equal(t, "app://home", got.Data["url"])
}

func TestPushAdapter_TicketError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"status":"error","message":"not registered","details":{"error":"DeviceNotRegistered"}}}`)
	}))
	defer srv.Close()

	_, err := NewPushAdapter(srv.Client(), srv.URL, "").Send(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DeviceNotRegistered")
}

func TestPushAdapter_RetriesThroughRetryClient(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"data":{"status":"ok","id":"ticket-2"}}`)
	}))
	defer srv.Close()

	client := httpretry.NewRetryClient(srv.Client(), 2, httpretry.WithBackoff(time.Millisecond, 2*time.Millisecond))
	r, err := NewPushAdapter(client, srv.URL, "").Send(context.Background(), sample)
	require.NoError(t, err)
	assert.Equal(t, "ticket-2", r.ProviderMessageID)
	assert.Equal(t, 2, calls)
}

func TestSMSAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC1", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550100", r.PostForm.Get("To"))
		assert.Equal(t, "Come back <soon> app://home", r.PostForm.Get("Body"))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"sid":"SM1","status":"queued"}`)
	}))
	defer srv.Close()

	a := NewSMSAdapter(srv.Client(), srv.URL, "AC1", "secret", "+15550199")
	msg := sample
	msg.Address = "+15550100"
	r, err := a.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "SM1", r.ProviderMessageID)
	assert.True(t, r.Queued)
}

func TestSMSAdapter_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":21211,"message":"Invalid 'To' Phone Number"}`)
	}))
	defer srv.Close()

	_, err := NewSMSAdapter(srv.Client(), srv.URL, "AC1", "s", "+1").Send(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21211")
}

func TestInAppAdapter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewInAppAdapter(client, "inbox", 2, "inbox-events")
	for i := 0; i < 3; i++ {
		msg := sample
		msg.Address = "u1"
		r, err := a.Send(context.Background(), msg)
		require.NoError(t, err)
		assert.NotEmpty(t, r.ProviderMessageID)
	}

	items, err := mr.List("inbox:u1")
	require.NoError(t, err)
	assert.Len(t, items, 2, "inbox is capped")

	var item InboxItem
	require.NoError(t, json.Unmarshal([]byte(items[0]), &item))
	assert.Equal(t, "We miss you", item.Title)
	assert.Equal(t, "d-123", item.DeliveryID)
}
