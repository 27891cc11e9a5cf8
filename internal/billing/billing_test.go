package billing

import (
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/genstudio/internal/models"
)

const secret = "whsec_test"

func sign(payload string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

func TestVerifySignatureAndParseSession(t *testing.T) {
	payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed","created":1714564800,
"data":{"object":{"id":"cs_1","object":"checkout.session","customer":"cus_1","metadata":{"orderId":"o1","plan":"BASIC"}}}}`

	event, err := VerifySignature([]byte(payload), sign(payload), secret)
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, string(event.Type))
	assert.Equal(t, int64(1714564800), event.Created)

	session, err := ParseSession(event)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "cus_1", session.Customer)
	assert.Equal(t, "o1", session.Metadata["orderId"])
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`
	header := sign(payload)

	_, err := VerifySignature([]byte(payload+" "), header, secret)
	assert.Error(t, err)

	_, err = VerifySignature([]byte(payload), header, "whsec_other")
	assert.Error(t, err)

	_, err = VerifySignature([]byte(payload), "", secret)
	assert.Error(t, err)
}

func TestCustomerIDExpandedObject(t *testing.T) {
	id, err := customerID([]byte(`{"id":"cus_9","object":"customer"}`))
	require.NoError(t, err)
	assert.Equal(t, "cus_9", id)

	id, err = customerID([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(
		PlanInfo{Plan: models.PlanBasic, Credits: 10, PriceID: "price_b"},
		PlanInfo{Plan: models.PlanMedium, Credits: 30, PriceID: "price_m"},
		PlanInfo{Plan: models.PlanPro, Credits: 50, PriceID: "price_p"},
	)

	p, err := c.Lookup("basic")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Credits)

	_, err = c.Lookup("ENTERPRISE")
	assert.Error(t, err)

	credits, ok := c.CreditsFor(models.PlanPro)
	assert.True(t, ok)
	assert.Equal(t, 50, credits)

	list := c.List()
	require.Len(t, list, 3)
	assert.Equal(t, models.PlanBasic, list[0].Plan)
	assert.Equal(t, models.PlanPro, list[2].Plan)
}
