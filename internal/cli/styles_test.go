// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusStyleMapping(t *testing.T) {
	require.Equal(t, SuccessStyle, statusStyle("active"), "active providers should render green")
	require.Equal(t, PromptStyle, statusStyle("configured"), "configured providers should render bright green")
	require.Equal(t, DimStyle, statusStyle("disabled"), "disabled providers should render dim")
	require.Equal(t, ErrorStyle, statusStyle("error"), "errored providers should render red")
	require.Equal(t, WarningStyle, statusStyle("something-new"), "unknown statuses should fall back to the warning style")
}

func TestRenderSeparator(t *testing.T) {
	require.True(t, strings.Contains(RenderSeparator(12), strings.Repeat("-", 12)), "separator should span the requested width")
	require.True(t, strings.Contains(RenderSeparator(0), strings.Repeat("-", 70)), "non-positive width should fall back to the default")
}
