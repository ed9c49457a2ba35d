package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Symbol{Base: "BTC", Quote: "USDT"}, Parse("btc/usdt"))
	assert.Equal(t, Symbol{Base: "ETH", Quote: "USDT"}, Parse("ETHUSDT"))
	assert.Equal(t, Symbol{Base: "SOL", Quote: "USDT"}, Parse("SOL/USDT:USDT"))
	assert.False(t, Parse("").Valid())
	assert.Equal(t, "BTCUSDT", Parse("BTC/USDT").Binance())
	assert.Equal(t, "BTC_USDT", Parse("BTC/USDT").Gate())
	assert.Equal(t, "BTC/USDT", Normalize("BTCUSDT"))
}
