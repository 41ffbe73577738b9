// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil holds helpers shared by the catalogfed tests.

  - TestContext and CancelledContext build contexts that are cleaned up with
    the test.
  - AssertResultIDs compares the ids of a merged page in order.
  - AssertEventuallyEqual polls a getter until it returns the expected value.
  - Sources turns concrete sources into the []types.Source Federate takes.

Subpackage mocks provides MockSource, a scriptable types.Source with call
recording, delays and error injection. Subpackage fixtures builds requests
and results on a fixed time base.
*/
package testutil
