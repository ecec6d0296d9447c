// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders (rows, grids, month calendar)
//   - Callback data helpers (namespace:action:payload)
//   - A simple, safe message builder with sensible defaults
//
// Messages default to ParseMode="HTML" with automatic escaping.
package tgui
