//go:build integration

package containers

// schema mirrors the production migrations closely enough for store tests.
const schema = `
CREATE TABLE users (
    id      UUID PRIMARY KEY,
    email   TEXT NOT NULL,
    phone   TEXT,
    role    TEXT NOT NULL,
    active  BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE payment_methods (
    id        UUID PRIMARY KEY,
    code      TEXT NOT NULL UNIQUE,
    name      TEXT NOT NULL,
    is_online BOOLEAN NOT NULL
);

CREATE TABLE document_requests (
    id                UUID PRIMARY KEY,
    request_number    TEXT NOT NULL UNIQUE,
    client_id         UUID NOT NULL,
    document_type     TEXT NOT NULL,
    status            INTEGER NOT NULL,
    priority          TEXT NOT NULL DEFAULT 'normal',
    payment_method_id UUID REFERENCES payment_methods(id),
    payment_status    TEXT NOT NULL DEFAULT 'pending',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE request_transitions (
    id         BIGSERIAL PRIMARY KEY,
    request_id UUID NOT NULL REFERENCES document_requests(id),
    old_status INTEGER,
    new_status INTEGER NOT NULL,
    actor_id   UUID,
    reason     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX request_transitions_request_idx ON request_transitions (request_id, id);

CREATE TABLE notifications (
    id             UUID PRIMARY KEY,
    recipient_id   UUID,
    recipient_type TEXT NOT NULL,
    type           TEXT NOT NULL,
    title          TEXT NOT NULL,
    message        TEXT NOT NULL,
    payload        JSONB,
    priority       TEXT NOT NULL DEFAULT 'normal',
    read           BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    read_at        TIMESTAMPTZ
);
CREATE INDEX notifications_recipient_idx ON notifications (recipient_type, recipient_id, created_at DESC);

CREATE TABLE outbox (
    seq          BIGSERIAL PRIMARY KEY,
    id           UUID NOT NULL,
    aggregate_id TEXT NOT NULL,
    event_type   TEXT NOT NULL,
    payload      JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    published_at TIMESTAMPTZ
);
CREATE INDEX outbox_pending_idx ON outbox (seq) WHERE published_at IS NULL;
`
