// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package plugins provides the built-in federation plugins.

Pre-query plugins run once per source on that source's private request copy:

  - RequestIDPlugin stamps the federation request id and a per-source
    dispatch id into the request properties.
  - SourceDenyListPlugin vetoes sources by id.
  - PageSizeCapPlugin bounds the page size forwarded to a source.

Post-query plugins run on the merged response:

  - AttributeRedactionPlugin strips attributes from every result.

All plugins are safe for concurrent use.
*/
package plugins
