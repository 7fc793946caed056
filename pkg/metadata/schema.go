package metadata

// Schema is the DDL for the authoritative placement table. Applied with
// IF NOT EXISTS so startup is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS feature_metadata (
    key_name         VARCHAR(255) PRIMARY KEY,
    storage_tier     VARCHAR(8)   NOT NULL,
    last_access_time BIGINT       NOT NULL DEFAULT 0,
    access_count     BIGINT       NOT NULL DEFAULT 0,
    create_time      BIGINT       NOT NULL,
    update_time      BIGINT       NOT NULL,
    expire_time      BIGINT,
    data_size        BIGINT       NOT NULL DEFAULT 0,
    business_tag     VARCHAR(128),
    migration_status VARCHAR(16)  NOT NULL DEFAULT 'STABLE',
    migration_time   BIGINT
);

CREATE INDEX IF NOT EXISTS idx_feature_metadata_sweep
    ON feature_metadata (storage_tier, migration_status, last_access_time);

CREATE INDEX IF NOT EXISTS idx_feature_metadata_expire
    ON feature_metadata (expire_time) WHERE expire_time IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_feature_metadata_tag
    ON feature_metadata (business_tag) WHERE business_tag IS NOT NULL;
`
