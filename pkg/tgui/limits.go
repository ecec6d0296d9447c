package tgui

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes, for
// the full "namespace:action:payload" string.
const MaxCallbackDataLen = 64
